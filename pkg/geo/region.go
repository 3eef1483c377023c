package geo

import (
	"github.com/paulmach/orb"

	"walktale/pkg/config"
)

// RegionIndex answers whether a coordinate falls inside any of the
// policy-driven restricted regions where the primary routing provider must
// not be used.
type RegionIndex struct {
	bounds []namedBound
}

type namedBound struct {
	name  string
	bound orb.Bound
}

// NewRegionIndex builds an index from configured bounding boxes.
func NewRegionIndex(regions []config.RegionConfig) *RegionIndex {
	idx := &RegionIndex{}
	for _, r := range regions {
		idx.bounds = append(idx.bounds, namedBound{
			name: r.Name,
			bound: orb.Bound{
				Min: orb.Point{r.MinLon, r.MinLat},
				Max: orb.Point{r.MaxLon, r.MaxLat},
			},
		})
	}
	return idx
}

// Contains reports whether p lies inside a restricted region, and the name of
// the first matching region.
func (idx *RegionIndex) Contains(p Point) (bool, string) {
	pt := orb.Point{p.Lon, p.Lat}
	for _, nb := range idx.bounds {
		if nb.bound.Contains(pt) {
			return true, nb.name
		}
	}
	return false, ""
}

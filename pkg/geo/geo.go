// Package geo provides the pure geometry used by the guide and route
// tracker. All functions are stateless and safe for concurrent use; malformed
// input yields sentinels, never panics.
package geo

import (
	"math"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

const earthRadiusM = 6371000

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in
// degrees [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// DestinationPoint calculates the destination point from a start point, given
// distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/earthRadiusM) +
		math.Cos(lat1)*math.Sin(distMeters/earthRadiusM)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/earthRadiusM)*math.Cos(lat1),
		math.Cos(distMeters/earthRadiusM)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// DistanceToSegment returns the distance in meters from p to the segment
// [a, b]. The projection uses an equirectangular approximation (adequate at
// city scale); the final distance is haversine from p to the clamped
// projection.
func DistanceToSegment(p, a, b Point) float64 {
	// Scale longitudes by cos(lat) so degrees are comparable on both axes.
	scale := math.Cos(a.Lat * math.Pi / 180.0)
	ax, ay := a.Lon*scale, a.Lat
	bx, by := b.Lon*scale, b.Lat
	px, py := p.Lon*scale, p.Lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		// Degenerate zero-length segment.
		return Distance(p, a)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	proj := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return Distance(p, proj)
}

// PolylineHit is the result of a nearest-point scan.
type PolylineHit struct {
	Index    int     // segment start index; -1 for an empty polyline
	Distance float64 // meters; +Inf for an empty polyline
}

// NearestPointOnPolyline scans every segment of line and returns the index of
// the closest segment and the distance to it. Ties are broken by the lowest
// index. A single-point line measures to that point; an empty line returns
// the {-1, +Inf} sentinel.
func NearestPointOnPolyline(p Point, line []Point) PolylineHit {
	if len(line) == 0 {
		return PolylineHit{Index: -1, Distance: math.Inf(1)}
	}
	if len(line) < 2 {
		return PolylineHit{Index: 0, Distance: Distance(p, line[0])}
	}

	best := PolylineHit{Index: 0, Distance: math.Inf(1)}
	for i := 0; i < len(line)-1; i++ {
		d := DistanceToSegment(p, line[i], line[i+1])
		if d < best.Distance {
			best = PolylineHit{Index: i, Distance: d}
		}
	}
	return best
}

// RemainingOnPolyline returns the meters left to walk from the point on line
// nearest to p to the final vertex. Returns 0 for an empty line.
func RemainingOnPolyline(p Point, line []Point) float64 {
	if len(line) == 0 {
		return 0
	}
	if len(line) == 1 {
		return Distance(p, line[0])
	}

	idx, t := projectOntoPolyline(p, line)
	proj := Point{
		Lat: line[idx].Lat + t*(line[idx+1].Lat-line[idx].Lat),
		Lon: line[idx].Lon + t*(line[idx+1].Lon-line[idx].Lon),
	}

	remaining := Distance(proj, line[idx+1])
	for i := idx + 1; i < len(line)-1; i++ {
		remaining += Distance(line[i], line[i+1])
	}
	return remaining
}

// projectOntoPolyline finds the segment index and projection parameter of the
// point on line nearest to p. line must have at least two points.
func projectOntoPolyline(p Point, line []Point) (int, float64) {
	bestIdx, bestT := 0, 0.0
	minDistSq := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		scale := math.Cos(line[i].Lat * math.Pi / 180.0)
		ax, ay := line[i].Lon*scale, line[i].Lat
		bx, by := line[i+1].Lon*scale, line[i+1].Lat
		px, py := p.Lon*scale, p.Lat

		dx, dy := bx-ax, by-ay
		lenSq := dx*dx + dy*dy
		t := 0.0
		if lenSq > 0 {
			t = math.Max(0, math.Min(1, ((px-ax)*dx+(py-ay)*dy)/lenSq))
		}
		projX, projY := ax+t*dx, ay+t*dy
		distSq := (px-projX)*(px-projX) + (py-projY)*(py-projY)
		if distSq < minDistSq {
			minDistSq = distSq
			bestIdx, bestT = i, t
		}
	}
	return bestIdx, bestT
}

// PointAlongPolyline advances moveMeters along line starting from the point
// on the line nearest to current, and returns the resulting position. Used by
// the simulated walker. Returns the final vertex when the distance runs past
// the end, and current unchanged for degenerate lines.
func PointAlongPolyline(current Point, line []Point, moveMeters float64) Point {
	if len(line) < 2 {
		return current
	}

	bestIdx, bestT := projectOntoPolyline(current, line)

	start := Point{
		Lat: line[bestIdx].Lat + bestT*(line[bestIdx+1].Lat-line[bestIdx].Lat),
		Lon: line[bestIdx].Lon + bestT*(line[bestIdx+1].Lon-line[bestIdx].Lon),
	}

	remaining := moveMeters
	idx := bestIdx
	for remaining > 0 && idx < len(line)-1 {
		next := line[idx+1]
		distToNext := Distance(start, next)
		if remaining <= distToNext && distToNext > 0 {
			ratio := remaining / distToNext
			return Point{
				Lat: start.Lat + (next.Lat-start.Lat)*ratio,
				Lon: start.Lon + (next.Lon-start.Lon)*ratio,
			}
		}
		remaining -= distToNext
		idx++
		start = line[idx]
	}
	return line[len(line)-1]
}

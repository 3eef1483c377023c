package routing

import (
	"context"
	"fmt"
	"log/slog"

	"walktale/pkg/geo"
	"walktale/pkg/model"
)

// Selector chains routing providers. It skips the primary inside restricted
// regions where its map data is unreliable, and degrades to a straight-line
// estimate when every provider fails.
type Selector struct {
	primary   Provider
	fallback  Provider
	regions   *geo.RegionIndex
	walkSpeed float64 // m/s, for straight-line duration estimates
}

// NewSelector creates a Selector. primary may be nil (no key configured);
// fallback may be nil too, leaving only the straight-line degradation.
func NewSelector(primary, fallback Provider, regions *geo.RegionIndex, walkSpeed float64) *Selector {
	return &Selector{
		primary:   primary,
		fallback:  fallback,
		regions:   regions,
		walkSpeed: walkSpeed,
	}
}

func (s *Selector) Name() string { return "selector" }

// Route implements Provider. It never returns an error for reachable inputs:
// the straight-line route is the floor.
func (s *Selector) Route(ctx context.Context, start, end model.Position) (*model.Route, error) {
	primary := s.primary
	if primary != nil && s.regions != nil {
		if restricted, name := s.regions.Contains(geo.Point{Lat: start.Lat, Lon: start.Lon}); restricted {
			slog.Info("Routing: primary provider skipped in restricted region", "region", name)
			primary = nil
		}
	}

	if primary != nil {
		route, err := primary.Route(ctx, start, end)
		if err == nil {
			route.Source = model.RouteSourcePrimary
			return route, nil
		}
		slog.Warn("Routing: primary provider failed, trying fallback", "provider", primary.Name(), "error", err)
	}

	if s.fallback != nil {
		route, err := s.fallback.Route(ctx, start, end)
		if err == nil {
			route.Source = model.RouteSourceFallback
			return route, nil
		}
		slog.Warn("Routing: fallback provider failed, using straight line", "provider", s.fallback.Name(), "error", err)
	}

	return s.straightLine(start, end), nil
}

// straightLine builds a two-point route with a duration estimated from the
// configured walking speed.
func (s *Selector) straightLine(start, end model.Position) *model.Route {
	dist := geo.Distance(
		geo.Point{Lat: start.Lat, Lon: start.Lon},
		geo.Point{Lat: end.Lat, Lon: end.Lon},
	)
	speed := s.walkSpeed
	if speed <= 0 {
		speed = 1.4
	}
	return &model.Route{
		Destination:   end,
		Polyline:      []model.Position{start, end},
		Source:        model.RouteSourceStraightLine,
		TotalDistance: dist,
		TotalDuration: dist / speed,
	}
}

var _ Provider = (*Selector)(nil)

// Describe returns a short human-readable summary of a route for logs.
func Describe(r *model.Route) string {
	return fmt.Sprintf("%s route, %.0fm, %.0fs, %d points",
		r.Source, r.TotalDistance, r.TotalDuration, len(r.Polyline))
}

package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"walktale/pkg/model"
	"walktale/pkg/request"
)

// OSRMProvider routes through an OSRM instance. The public demo server works
// without a key, which makes it the fallback of choice.
type OSRMProvider struct {
	request *request.Client
	base    string
}

// NewOSRM creates an OSRM provider. base is the server root, e.g.
// "https://router.project-osrm.org".
func NewOSRM(r *request.Client, base string) *OSRMProvider {
	return &OSRMProvider{request: r, base: base}
}

func (o *OSRMProvider) Name() string { return "osrm" }

// Route implements Provider.
func (o *OSRMProvider) Route(ctx context.Context, start, end model.Position) (*model.Route, error) {
	// OSRM wants lon,lat order.
	u := fmt.Sprintf("%s/route/v1/walking/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.base, start.Lon, start.Lat, end.Lon, end.Lat)

	body, err := o.request.Get(ctx, u, "")
	if err != nil {
		return nil, fmt.Errorf("osrm request failed: %w", err)
	}

	var apiResp struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode osrm json: %w", err)
	}

	if apiResp.Code != "Ok" || len(apiResp.Routes) == 0 {
		return nil, fmt.Errorf("osrm code %s", apiResp.Code)
	}

	r := apiResp.Routes[0]
	if len(r.Geometry.Coordinates) == 0 {
		return nil, fmt.Errorf("osrm returned empty geometry")
	}

	polyline := make([]model.Position, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		polyline = append(polyline, model.Position{Lat: c[1], Lon: c[0]})
	}

	return &model.Route{
		Destination:   end,
		Polyline:      polyline,
		Source:        model.RouteSourceFallback,
		TotalDistance: r.Distance,
		TotalDuration: r.Duration,
	}, nil
}

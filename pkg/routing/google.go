package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"walktale/pkg/model"
	"walktale/pkg/request"
)

const directionsEndpoint = "https://maps.googleapis.com/maps/api/directions/json"

// GoogleProvider routes through the Google Directions API.
type GoogleProvider struct {
	request  *request.Client
	key      string
	Endpoint string // Optional override for testing
}

// NewGoogle creates a Google Directions provider.
func NewGoogle(r *request.Client, key string) *GoogleProvider {
	return &GoogleProvider{request: r, key: key}
}

func (g *GoogleProvider) Name() string { return "google" }

// Route implements Provider.
func (g *GoogleProvider) Route(ctx context.Context, start, end model.Position) (*model.Route, error) {
	if g.key == "" {
		return nil, fmt.Errorf("google directions: no API key configured")
	}

	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = directionsEndpoint
	}

	u, _ := url.Parse(endpoint)
	q := u.Query()
	q.Add("origin", fmt.Sprintf("%.6f,%.6f", start.Lat, start.Lon))
	q.Add("destination", fmt.Sprintf("%.6f,%.6f", end.Lat, end.Lon))
	q.Add("mode", "walking")
	q.Add("key", g.key)
	u.RawQuery = q.Encode()

	body, err := g.request.Get(ctx, u.String(), "")
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}

	var apiResp struct {
		Status string `json:"status"`
		Routes []struct {
			OverviewPolyline struct {
				Points string `json:"points"`
			} `json:"overview_polyline"`
			Legs []struct {
				Distance struct {
					Value float64 `json:"value"`
				} `json:"distance"`
				Duration struct {
					Value float64 `json:"value"`
				} `json:"duration"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode directions json: %w", err)
	}

	if apiResp.Status != "OK" || len(apiResp.Routes) == 0 {
		return nil, fmt.Errorf("directions status %s", apiResp.Status)
	}

	r := apiResp.Routes[0]
	polyline := decodePolyline(r.OverviewPolyline.Points)
	if len(polyline) == 0 {
		return nil, fmt.Errorf("directions returned empty polyline")
	}

	route := &model.Route{
		Destination: end,
		Polyline:    polyline,
		Source:      model.RouteSourcePrimary,
	}
	for _, leg := range r.Legs {
		route.TotalDistance += leg.Distance.Value
		route.TotalDuration += leg.Duration.Value
	}
	return route, nil
}

// decodePolyline decodes Google's encoded polyline format: deltas of
// lat/lon scaled by 1e5, zig-zag encoded, in 5-bit chunks offset by 63.
func decodePolyline(encoded string) []model.Position {
	var points []model.Position
	var lat, lon int64
	idx := 0

	readDelta := func() (int64, bool) {
		var result int64
		var shift uint
		for {
			if idx >= len(encoded) {
				return 0, false
			}
			b := int64(encoded[idx]) - 63
			idx++
			result |= (b & 0x1f) << shift
			shift += 5
			if b < 0x20 {
				break
			}
		}
		if result&1 != 0 {
			return ^(result >> 1), true
		}
		return result >> 1, true
	}

	for idx < len(encoded) {
		dLat, ok := readDelta()
		if !ok {
			break
		}
		dLon, ok := readDelta()
		if !ok {
			break
		}
		lat += dLat
		lon += dLon
		points = append(points, model.Position{
			Lat: float64(lat) / 1e5,
			Lon: float64(lon) / 1e5,
		})
	}
	return points
}

// Package geocode resolves GPS positions into street-level context for
// narration prompts. Results are cached per H3 cell so a walker circling a
// block does not burn geocoding quota on near-identical fixes.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/uber/h3-go/v4"

	"walktale/pkg/model"
	"walktale/pkg/request"
)

const geocodeEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// Resolver turns a position into an address.
type Resolver interface {
	Reverse(ctx context.Context, pos model.Position) (*model.Address, error)
}

// Client reverse-geocodes through the Google Geocoding API.
type Client struct {
	request    *request.Client
	key        string
	language   string
	resolution int
	Endpoint   string // Optional override for testing
}

// New creates a geocoding client. resolution is the H3 cell resolution used
// for cache keys; res 9 cells are ~100m wide, about one city block.
func New(r *request.Client, key, language string, resolution int) *Client {
	return &Client{
		request:    r,
		key:        key,
		language:   language,
		resolution: resolution,
	}
}

// Reverse resolves pos into an Address. The H3 cell of the position is the
// cache key, so all fixes inside the same cell share one upstream call.
func (c *Client) Reverse(ctx context.Context, pos model.Position) (*model.Address, error) {
	if c.key == "" {
		return nil, fmt.Errorf("geocoding disabled: no API key")
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = geocodeEndpoint
	}

	u, _ := url.Parse(endpoint)
	q := u.Query()
	q.Add("latlng", fmt.Sprintf("%.6f,%.6f", pos.Lat, pos.Lon))
	q.Add("key", c.key)
	q.Add("language", c.language)
	q.Add("result_type", "street_address|neighborhood|sublocality|locality")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), c.cacheKey(pos))
	if err != nil {
		return nil, fmt.Errorf("reverse geocode failed: %w", err)
	}

	var apiResp struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress  string `json:"formatted_address"`
			AddressComponents []struct {
				LongName string   `json:"long_name"`
				Types    []string `json:"types"`
			} `json:"address_components"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode geocode json: %w", err)
	}

	if apiResp.Status == "ZERO_RESULTS" || len(apiResp.Results) == 0 {
		// Middle of a park, a bridge, open water. Not an error for the caller.
		return &model.Address{}, nil
	}
	if apiResp.Status != "OK" {
		return nil, fmt.Errorf("geocode status %s", apiResp.Status)
	}

	addr := &model.Address{}
	for _, comp := range apiResp.Results[0].AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "route":
				if addr.Street == "" {
					addr.Street = comp.LongName
				}
			case "neighborhood", "sublocality_level_1", "sublocality":
				if addr.Neighborhood == "" {
					addr.Neighborhood = comp.LongName
				}
			case "locality":
				if addr.City == "" {
					addr.City = comp.LongName
				}
			case "administrative_area_level_1":
				if addr.District == "" {
					addr.District = comp.LongName
				}
			case "country":
				if addr.Country == "" {
					addr.Country = comp.LongName
				}
			}
		}
	}

	slog.Debug("reverse geocoded", "city", addr.City, "street", addr.Street)
	return addr, nil
}

// cacheKey maps pos to its H3 cell index string.
func (c *Client) cacheKey(pos model.Position) string {
	cell, err := h3.LatLngToCell(h3.NewLatLng(pos.Lat, pos.Lon), c.resolution)
	if err != nil {
		// Degenerate coordinates; skip caching rather than poison a shared key.
		return ""
	}
	return "geo_h3_" + cell.String()
}

package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walktale/pkg/config"
	"walktale/pkg/geo"
	"walktale/pkg/model"
	"walktale/pkg/request"
	"walktale/pkg/store"
	"walktale/pkg/tracker"
)

func newRequestClient() *request.Client {
	return request.New(store.NewMemory(), tracker.New(), 2*time.Second, 1,
		request.NewProviderBackoff(time.Millisecond, 5*time.Millisecond))
}

func posAt(lat, lon float64) model.Position {
	return model.NewPosition(lat, lon, 10, time.Now())
}

func TestDecodePolyline(t *testing.T) {
	// Reference vector from the polyline format documentation.
	points := decodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	want := []model.Position{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	if len(points) != len(want) {
		t.Fatalf("decoded %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if math.Abs(points[i].Lat-want[i].Lat) > 1e-5 || math.Abs(points[i].Lon-want[i].Lon) > 1e-5 {
			t.Errorf("point %d = (%v, %v), want (%v, %v)", i, points[i].Lat, points[i].Lon, want[i].Lat, want[i].Lon)
		}
	}

	if pts := decodePolyline(""); pts != nil {
		t.Errorf("empty input should decode to nil, got %v", pts)
	}
}

func TestGoogleProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("mode") != "walking" {
			t.Errorf("mode = %q", q.Get("mode"))
		}
		fmt.Fprint(w, `{
			"status": "OK",
			"routes": [{
				"overview_polyline": {"points": "_p~iF~ps|U_ulLnnqC"},
				"legs": [{"distance": {"value": 1200}, "duration": {"value": 900}}]
			}]
		}`)
	}))
	defer srv.Close()

	g := NewGoogle(newRequestClient(), "test-key")
	g.Endpoint = srv.URL

	route, err := g.Route(context.Background(), posAt(38.5, -120.2), posAt(40.7, -120.95))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route.Polyline) != 2 {
		t.Errorf("polyline len = %d", len(route.Polyline))
	}
	if route.TotalDistance != 1200 || route.TotalDuration != 900 {
		t.Errorf("distance = %v, duration = %v", route.TotalDistance, route.TotalDuration)
	}
	if route.Source != model.RouteSourcePrimary {
		t.Errorf("source = %v", route.Source)
	}
}

func TestGoogleProvider_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "routes": []}`)
	}))
	defer srv.Close()

	g := NewGoogle(newRequestClient(), "test-key")
	g.Endpoint = srv.URL
	if _, err := g.Route(context.Background(), posAt(0, 0), posAt(1, 1)); err == nil {
		t.Error("expected error for ZERO_RESULTS")
	}
}

func TestGoogleProvider_NoKey(t *testing.T) {
	g := NewGoogle(newRequestClient(), "")
	if _, err := g.Route(context.Background(), posAt(0, 0), posAt(1, 1)); err == nil {
		t.Error("expected error without key")
	}
}

func TestOSRMProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Coordinates arrive lon,lat.
		if r.URL.Path != "/route/v1/walking/-3.703500,40.416900;-3.692100,40.419700" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"code": "Ok",
			"routes": [{
				"distance": 1100,
				"duration": 800,
				"geometry": {"coordinates": [[-3.7035, 40.4169], [-3.6921, 40.4197]]}
			}]
		}`)
	}))
	defer srv.Close()

	o := NewOSRM(newRequestClient(), srv.URL)
	route, err := o.Route(context.Background(), posAt(40.4169, -3.7035), posAt(40.4197, -3.6921))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route.Polyline) != 2 {
		t.Fatalf("polyline len = %d", len(route.Polyline))
	}
	// geojson is lon,lat; polyline must be lat,lon.
	if route.Polyline[0].Lat != 40.4169 || route.Polyline[0].Lon != -3.7035 {
		t.Errorf("first point = %+v", route.Polyline[0])
	}
	if route.Source != model.RouteSourceFallback {
		t.Errorf("source = %v", route.Source)
	}
}

func TestOSRMProvider_BadCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": "NoRoute", "routes": []}`)
	}))
	defer srv.Close()

	o := NewOSRM(newRequestClient(), srv.URL)
	if _, err := o.Route(context.Background(), posAt(0, 0), posAt(1, 1)); err == nil {
		t.Error("expected error for NoRoute")
	}
}

// stubProvider returns a fixed route or error and records calls.
type stubProvider struct {
	name   string
	route  *model.Route
	err    error
	called int
}

func (s *stubProvider) Route(context.Context, model.Position, model.Position) (*model.Route, error) {
	s.called++
	return s.route, s.err
}

func (s *stubProvider) Name() string { return s.name }

func testRegions() *geo.RegionIndex {
	return geo.NewRegionIndex([]config.RegionConfig{
		{Name: "korea", MinLat: 33, MaxLat: 39, MinLon: 124, MaxLon: 132},
	})
}

func TestSelector_PrimaryWins(t *testing.T) {
	primary := &stubProvider{name: "p", route: &model.Route{Polyline: []model.Position{{}, {}}}}
	fallback := &stubProvider{name: "f"}
	s := NewSelector(primary, fallback, testRegions(), 1.4)

	route, err := s.Route(context.Background(), posAt(40.4, -3.7), posAt(40.5, -3.7))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != model.RouteSourcePrimary {
		t.Errorf("source = %v", route.Source)
	}
	if fallback.called != 0 {
		t.Error("fallback should not be called when primary succeeds")
	}
}

func TestSelector_RestrictedRegionSkipsPrimary(t *testing.T) {
	primary := &stubProvider{name: "p", route: &model.Route{}}
	fallback := &stubProvider{name: "f", route: &model.Route{Polyline: []model.Position{{}, {}}}}
	s := NewSelector(primary, fallback, testRegions(), 1.4)

	// Seoul is inside the korea region box.
	route, err := s.Route(context.Background(), posAt(37.5665, 126.978), posAt(37.57, 126.98))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if primary.called != 0 {
		t.Error("primary must be skipped inside a restricted region")
	}
	if route.Source != model.RouteSourceFallback {
		t.Errorf("source = %v", route.Source)
	}
}

func TestSelector_FailoverToFallback(t *testing.T) {
	primary := &stubProvider{name: "p", err: errors.New("quota")}
	fallback := &stubProvider{name: "f", route: &model.Route{Polyline: []model.Position{{}, {}}}}
	s := NewSelector(primary, fallback, testRegions(), 1.4)

	route, err := s.Route(context.Background(), posAt(40.4, -3.7), posAt(40.5, -3.7))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != model.RouteSourceFallback {
		t.Errorf("source = %v", route.Source)
	}
}

func TestSelector_StraightLineFloor(t *testing.T) {
	primary := &stubProvider{name: "p", err: errors.New("down")}
	fallback := &stubProvider{name: "f", err: errors.New("down")}
	s := NewSelector(primary, fallback, testRegions(), 1.4)

	start, end := posAt(40.4169, -3.7035), posAt(40.4193, -3.6922)
	route, err := s.Route(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != model.RouteSourceStraightLine {
		t.Errorf("source = %v", route.Source)
	}
	if len(route.Polyline) != 2 {
		t.Errorf("polyline len = %d", len(route.Polyline))
	}

	dist := geo.Distance(geo.Point{Lat: start.Lat, Lon: start.Lon}, geo.Point{Lat: end.Lat, Lon: end.Lon})
	if math.Abs(route.TotalDistance-dist) > 0.01 {
		t.Errorf("distance = %v, want %v", route.TotalDistance, dist)
	}
	wantDuration := dist / 1.4
	if math.Abs(route.TotalDuration-wantDuration) > 0.01 {
		t.Errorf("duration = %v, want %v", route.TotalDuration, wantDuration)
	}
}

func TestSelector_NoProviders(t *testing.T) {
	s := NewSelector(nil, nil, nil, 1.4)
	route, err := s.Route(context.Background(), posAt(0, 0), posAt(0, 1))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != model.RouteSourceStraightLine {
		t.Errorf("source = %v", route.Source)
	}
}

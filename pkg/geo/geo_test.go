package geo

import (
	"math"
	"testing"

	"walktale/pkg/config"
)

// Madrid Sol and nearby points used across tests.
var (
	sol     = Point{Lat: 40.4169, Lon: -3.7035}
	cibeles = Point{Lat: 40.4193, Lon: -3.6934}
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		p1, p2  Point
		wantM   float64
		tolM    float64
	}{
		{"identity", sol, sol, 0, 0.001},
		{"sol to cibeles", sol, cibeles, 893, 15},
		{"equator degree", Point{0, 0}, Point{0, 1}, 111195, 50},
		{"pole crossing", Point{89.9, 0}, Point{89.9, 180}, 22239, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			if math.Abs(got-tt.wantM) > tt.tolM {
				t.Errorf("Distance() = %.1f, want %.1f ± %.1f", got, tt.wantM, tt.tolM)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	if d1, d2 := Distance(sol, cibeles), Distance(cibeles, sol); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("Distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name    string
		p1, p2  Point
		wantDeg float64
		tolDeg  float64
	}{
		{"due north", Point{0, 0}, Point{1, 0}, 0, 0.01},
		{"due east", Point{0, 0}, Point{0, 1}, 90, 0.01},
		{"due south", Point{1, 0}, Point{0, 0}, 180, 0.01},
		{"due west", Point{0, 1}, Point{0, 0}, 270, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.p1, tt.p2)
			if math.Abs(NormalizeAngle(got-tt.wantDeg)) > tt.tolDeg {
				t.Errorf("Bearing() = %.2f, want %.2f", got, tt.wantDeg)
			}
		})
	}
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	dest := DestinationPoint(sol, 500, 45)
	if d := Distance(sol, dest); math.Abs(d-500) > 1 {
		t.Errorf("destination point distance = %.2f, want 500", d)
	}
	if b := Bearing(sol, dest); math.Abs(NormalizeAngle(b-45)) > 0.5 {
		t.Errorf("destination point bearing = %.2f, want 45", b)
	}
}

func TestDistanceToSegment_DegenerateSegment(t *testing.T) {
	// Zero-length segment must equal plain point distance.
	got := DistanceToSegment(sol, cibeles, cibeles)
	want := Distance(sol, cibeles)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("DistanceToSegment(p, a, a) = %v, want %v", got, want)
	}
}

func TestDistanceToSegment_Clamping(t *testing.T) {
	a := Point{Lat: 40.0, Lon: -3.70}
	b := Point{Lat: 40.0, Lon: -3.69}

	// Point beyond segment end projects onto the endpoint.
	beyond := Point{Lat: 40.0, Lon: -3.68}
	got := DistanceToSegment(beyond, a, b)
	want := Distance(beyond, b)
	if math.Abs(got-want) > 0.01 {
		t.Errorf("clamped distance = %.2f, want %.2f", got, want)
	}

	// Point alongside the middle of the segment is closer than to either end.
	side := Point{Lat: 40.001, Lon: -3.695}
	d := DistanceToSegment(side, a, b)
	if d >= Distance(side, a) || d >= Distance(side, b) {
		t.Errorf("mid-segment distance %.2f not smaller than endpoint distances", d)
	}
}

func TestNearestPointOnPolyline(t *testing.T) {
	line := []Point{
		{40.0, -3.70},
		{40.0, -3.69},
		{40.0, -3.68},
		{40.01, -3.68},
	}

	t.Run("empty sentinel", func(t *testing.T) {
		hit := NearestPointOnPolyline(sol, nil)
		if hit.Index != -1 || !math.IsInf(hit.Distance, 1) {
			t.Errorf("empty polyline = %+v, want sentinel", hit)
		}
	})

	t.Run("single point", func(t *testing.T) {
		hit := NearestPointOnPolyline(sol, line[:1])
		if hit.Index != 0 || math.Abs(hit.Distance-Distance(sol, line[0])) > 1e-9 {
			t.Errorf("single point = %+v", hit)
		}
	})

	t.Run("two points equals segment distance", func(t *testing.T) {
		p := Point{Lat: 40.001, Lon: -3.695}
		hit := NearestPointOnPolyline(p, line[:2])
		want := DistanceToSegment(p, line[0], line[1])
		if hit.Index != 0 || math.Abs(hit.Distance-want) > 1e-9 {
			t.Errorf("two-point hit = %+v, want distance %v", hit, want)
		}
	})

	t.Run("picks closest segment", func(t *testing.T) {
		p := Point{Lat: 40.005, Lon: -3.6801}
		hit := NearestPointOnPolyline(p, line)
		if hit.Index != 2 {
			t.Errorf("index = %d, want 2 (hit %+v)", hit.Index, hit)
		}
	})

	t.Run("tie broken by first index", func(t *testing.T) {
		// Point equidistant from two collinear segments meeting at a vertex.
		p := Point{Lat: 40.001, Lon: -3.69}
		hit := NearestPointOnPolyline(p, line[:3])
		if hit.Index != 0 {
			t.Errorf("tie index = %d, want 0", hit.Index)
		}
	})
}

func TestPointAlongPolyline(t *testing.T) {
	line := []Point{
		{40.0, -3.70},
		{40.0, -3.69},
		{40.0, -3.68},
	}

	t.Run("degenerate returns current", func(t *testing.T) {
		got := PointAlongPolyline(sol, line[:1], 100)
		if got != sol {
			t.Errorf("got %+v, want current position", got)
		}
	})

	t.Run("advances roughly the requested distance", func(t *testing.T) {
		next := PointAlongPolyline(line[0], line, 100)
		if d := Distance(line[0], next); math.Abs(d-100) > 2 {
			t.Errorf("advanced %.1f m, want ~100", d)
		}
	})

	t.Run("overshoot clamps to final vertex", func(t *testing.T) {
		next := PointAlongPolyline(line[0], line, 1e6)
		if next != line[len(line)-1] {
			t.Errorf("got %+v, want final vertex", next)
		}
	})
}

func TestRemainingOnPolyline(t *testing.T) {
	line := []Point{
		{40.0, -3.70},
		{40.0, -3.69},
		{40.0, -3.68},
	}
	total := Distance(line[0], line[1]) + Distance(line[1], line[2])

	t.Run("at start remaining is full length", func(t *testing.T) {
		got := RemainingOnPolyline(line[0], line)
		if math.Abs(got-total) > 1 {
			t.Errorf("remaining = %.1f, want ~%.1f", got, total)
		}
	})

	t.Run("at end remaining is zero", func(t *testing.T) {
		if got := RemainingOnPolyline(line[2], line); got > 1 {
			t.Errorf("remaining = %.1f, want ~0", got)
		}
	})

	t.Run("midway remaining shrinks", func(t *testing.T) {
		mid := PointAlongPolyline(line[0], line, total/2)
		got := RemainingOnPolyline(mid, line)
		if math.Abs(got-total/2) > 5 {
			t.Errorf("remaining = %.1f, want ~%.1f", got, total/2)
		}
	})

	t.Run("empty line", func(t *testing.T) {
		if got := RemainingOnPolyline(sol, nil); got != 0 {
			t.Errorf("remaining = %v, want 0", got)
		}
	})
}

func TestRegionIndex(t *testing.T) {
	idx := NewRegionIndex([]config.RegionConfig{
		{Name: "korea", MinLat: 33, MaxLat: 39, MinLon: 124, MaxLon: 132},
		{Name: "china-mainland", MinLat: 18, MaxLat: 54, MinLon: 73, MaxLon: 123},
	})

	tests := []struct {
		name     string
		p        Point
		want     bool
		wantName string
	}{
		{"seoul", Point{37.5636, 126.9827}, true, "korea"},
		{"beijing", Point{39.9042, 116.4074}, true, "china-mainland"},
		{"madrid", sol, false, ""},
		{"tokyo", Point{35.6762, 139.6503}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name := idx.Contains(tt.p)
			if got != tt.want || name != tt.wantName {
				t.Errorf("Contains(%s) = (%v, %q), want (%v, %q)", tt.name, got, name, tt.want, tt.wantName)
			}
		})
	}
}

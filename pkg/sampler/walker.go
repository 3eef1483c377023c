package sampler

import (
	"context"
	"math"
	"math/rand"
	"time"

	"walktale/pkg/geo"
	"walktale/pkg/model"
)

// WalkerConfig holds tuning for the simulated pedestrian.
type WalkerConfig struct {
	StartLat float64
	StartLon float64
	SpeedMS  float64       // defaults to 1.4
	Interval time.Duration // defaults to 1s
	// AccuracyM is the reported fix accuracy; JitterM scatters the
	// position around the true track like a real receiver would.
	AccuracyM float64
	JitterM   float64
	// Route, when set, is followed to its end; otherwise the walker
	// wanders, turning a little every so often.
	Route []geo.Point
}

// Walker is a simulated pedestrian GPS source.
type Walker struct {
	cfg WalkerConfig
	rng *rand.Rand
}

func NewWalker(cfg WalkerConfig) *Walker {
	if cfg.SpeedMS <= 0 {
		cfg.SpeedMS = 1.4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.AccuracyM <= 0 {
		cfg.AccuracyM = 8
	}
	return &Walker{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (w *Walker) Name() string { return "walker" }

// Run emits one fix per interval until ctx is cancelled or the route is
// walked to its end.
func (w *Walker) Run(ctx context.Context, sink Sink) error {
	cur := geo.Point{Lat: w.cfg.StartLat, Lon: w.cfg.StartLon}
	heading := w.rng.Float64() * 360
	lastTurn := time.Now()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			step := w.cfg.SpeedMS * w.cfg.Interval.Seconds()
			if len(w.cfg.Route) > 0 {
				next := geo.PointAlongPolyline(cur, w.cfg.Route, step)
				heading = geo.Bearing(cur, next)
				end := w.cfg.Route[len(w.cfg.Route)-1]
				cur = next
				if geo.Distance(cur, end) < step {
					sink(w.fix(cur, heading, now))
					return nil
				}
			} else {
				// Streets are not straight for long.
				if now.Sub(lastTurn) > 20*time.Second {
					heading += (w.rng.Float64() - 0.5) * 60
					lastTurn = now
				}
				cur = geo.DestinationPoint(cur, step, heading)
			}
			sink(w.fix(cur, heading, now))
		}
	}
}

// fix scatters the true position by the configured jitter, the way consumer
// receivers wobble around the track.
func (w *Walker) fix(p geo.Point, heading float64, now time.Time) model.Position {
	if w.cfg.JitterM > 0 {
		p = geo.DestinationPoint(p, w.rng.Float64()*w.cfg.JitterM, w.rng.Float64()*360)
	}
	heading = math.Mod(heading+360, 360)
	return model.Position{
		Lat:       p.Lat,
		Lon:       p.Lon,
		AccuracyM: w.cfg.AccuracyM,
		Timestamp: now,
		Heading:   heading,
		SpeedMS:   w.cfg.SpeedMS,
	}
}

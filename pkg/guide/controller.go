// Package guide implements the narration trigger controller: it watches the
// GPS stream, decides when the walker has earned a new narration, fetches it
// and speaks it. One narration is in flight at a time; everything else is
// gates that keep the guide quiet.
package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"walktale/pkg/config"
	"walktale/pkg/content"
	"walktale/pkg/geo"
	"walktale/pkg/logging"
	"walktale/pkg/model"
	"walktale/pkg/session"
)

var ErrTourActive = errors.New("a tour is already running")
var ErrNoTour = errors.New("no tour is running")

// tourState is the per-tour narration bookkeeping. A new value is allocated
// on every StartTour; the epoch lets in-flight generations detect that their
// tour has ended and discard their result.
type tourState struct {
	epoch uint64

	knownLandmarks []string
	knownStories   []string
	lastSource     model.ContentSource
	storyStep      int

	anchor    model.Position
	anchorSet bool

	cooldownUntil   time.Time
	lastAttemptAt   time.Time
	lastNarrationAt time.Time
}

// Controller drives the tour. Safe for concurrent use.
type Controller struct {
	cfg     config.GuideConfig
	content ContentProvider
	speaker Speaker
	stats   *session.Manager
	clock   Clock

	mu         sync.Mutex
	touring    bool
	tourCtx    context.Context
	tourCancel context.CancelFunc
	tour       *tourState
	movement   movementState
	epochs     uint64

	generating bool
}

// New assembles a controller. stats may not be nil.
func New(cfg config.GuideConfig, provider ContentProvider, speaker Speaker, stats *session.Manager) *Controller {
	return &Controller{
		cfg:     cfg,
		content: provider,
		speaker: speaker,
		stats:   stats,
		clock:   systemClock{},
	}
}

// SetClock replaces the time source. For tests.
func (c *Controller) SetClock(clk Clock) { c.clock = clk }

// StartTour begins a new tour at pos and returns the tour ID. The greeting
// is generated and spoken asynchronously; its completion starts the regular
// cooldown so the first landmark does not talk over it.
func (c *Controller) StartTour(pos model.Position) (string, error) {
	c.mu.Lock()
	if c.touring {
		c.mu.Unlock()
		return "", ErrTourActive
	}
	now := c.clock.Now()
	c.epochs++
	c.touring = true
	c.tourCtx, c.tourCancel = context.WithCancel(context.Background())
	c.tour = &tourState{epoch: c.epochs}
	c.movement = movementState{}
	c.movement.update(pos, now, c.cfg.AccuracyLimitM, c.cfg.SignificantMoveM)
	id := c.stats.Start()
	c.generating = true
	c.tour.lastAttemptAt = now
	ctx, epoch := c.tourCtx, c.tour.epoch
	c.mu.Unlock()

	slog.Info("tour started", "tour", id, "lat", pos.Lat, "lon", pos.Lon)
	logging.LogEvent(&model.TourEvent{
		Type: "TOUR_START", Timestamp: now, Lat: pos.Lat, Lon: pos.Lon,
		Detail: map[string]any{"tour_id": id},
	})
	go c.speakGreeting(ctx, pos, epoch)
	return id, nil
}

// StopTour ends the tour, silencing any playback, and returns the report.
func (c *Controller) StopTour() (*model.TourReport, error) {
	c.mu.Lock()
	if !c.touring {
		c.mu.Unlock()
		return nil, ErrNoTour
	}
	c.touring = false
	cancel := c.tourCancel
	c.tour = nil
	c.tourCtx, c.tourCancel = nil, nil
	c.mu.Unlock()

	cancel()
	c.speaker.Stop()
	report := c.stats.Stop()
	slog.Info("tour stopped", "tour", report.TourID,
		"narrations", len(report.Narrations),
		"distance_m", fmt.Sprintf("%.0f", report.DistanceMeters))
	logging.LogEvent(&model.TourEvent{
		Type: "TOUR_STOP", Timestamp: c.clock.Now(),
		Detail: map[string]any{
			"tour_id":    report.TourID,
			"narrations": len(report.Narrations),
			"distance_m": report.DistanceMeters,
		},
	})
	return report, nil
}

// Touring reports whether a tour is active.
func (c *Controller) Touring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touring
}

// CurrentPosition returns the latest accepted fix, if any.
func (c *Controller) CurrentPosition() (model.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.movement.hasFix {
		return model.Position{}, false
	}
	return c.movement.position(), true
}

// OnPosition feeds a GPS fix into the movement tracker.
func (c *Controller) OnPosition(pos model.Position) {
	c.mu.Lock()
	accepted, moved := c.movement.update(pos, c.clock.Now(), c.cfg.AccuracyLimitM, c.cfg.SignificantMoveM)
	touring := c.touring
	c.mu.Unlock()

	if !accepted {
		slog.Debug("fix rejected", "accuracy_m", pos.AccuracyM)
		return
	}
	if touring {
		c.stats.AddDistance(moved)
	}
}

// Run drives the heartbeat until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	period := time.Duration(c.cfg.Heartbeat)
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	slog.Info("guide heartbeat running", "period", period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs one pass of the trigger gates. Exactly one generation can be in
// flight; all gates fail silent at debug level.
func (c *Controller) Tick() {
	c.mu.Lock()
	if !c.touring {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()

	// A walker who has not moved in a long while has ended the walk.
	if c.movement.hasFix && now.Sub(c.movement.lastSignificantAt) >= time.Duration(c.cfg.IdleTimeout) {
		pos := c.movement.current
		c.mu.Unlock()
		slog.Info("no movement for a while, ending tour", "idle", c.cfg.IdleTimeout)
		logging.LogEvent(&model.TourEvent{
			Type: "IDLE_TIMEOUT", Timestamp: now, Lat: pos.Lat, Lon: pos.Lon,
		})
		if _, err := c.StopTour(); err != nil {
			slog.Warn("idle stop failed", "error", err)
		}
		return
	}

	if c.generating {
		// Watchdog: a generation that never reported back must not
		// wedge the tour. Once cleared, this same tick falls through
		// to the remaining gates and may attempt a fresh fetch.
		if now.Sub(c.tour.lastAttemptAt) < time.Duration(c.cfg.GenerationTimeout) {
			c.mu.Unlock()
			return
		}
		slog.Warn("generation watchdog fired, clearing stuck lock",
			"elapsed", now.Sub(c.tour.lastAttemptAt))
		c.generating = false
	}
	if c.speaker.IsSpeaking() {
		c.mu.Unlock()
		return
	}
	if now.Before(c.tour.cooldownUntil) {
		c.mu.Unlock()
		return
	}
	// Floor beneath the nominal cooldown, counted from the last narration
	// that actually went out. Failed attempts land on the failure cooldown
	// alone.
	if !c.tour.lastNarrationAt.IsZero() && now.Sub(c.tour.lastNarrationAt) < time.Duration(c.cfg.HardLock) {
		c.mu.Unlock()
		return
	}
	if !c.movement.hasFix {
		c.mu.Unlock()
		return
	}
	pos := c.movement.position()
	if c.tour.anchorSet && geo.Distance(point(c.tour.anchor), point(pos)) < c.cfg.TriggerDistanceM {
		c.mu.Unlock()
		return
	}

	c.generating = true
	c.tour.lastAttemptAt = now
	ctx, epoch := c.tourCtx, c.tour.epoch
	c.mu.Unlock()

	go c.generate(ctx, pos, epoch)
}

// HandleArrival speaks the destination greeting. Wired as the route
// tracker's arrival callback; it interrupts whatever is playing.
func (c *Controller) HandleArrival(destination string) {
	c.mu.Lock()
	if !c.touring {
		c.mu.Unlock()
		return
	}
	ctx, epoch := c.tourCtx, c.tour.epoch
	pos := c.movement.position()
	c.mu.Unlock()

	go func() {
		text, err := c.content.ArrivalGreeting(ctx, pos, destination)
		if err != nil {
			slog.Warn("arrival greeting failed", "error", err)
			return
		}
		c.speaker.Stop()
		logging.LogEvent(&model.TourEvent{
			Type: "ARRIVAL", Timestamp: c.clock.Now(), Lat: pos.Lat, Lon: pos.Lon,
			Detail: map[string]any{"destination": destination},
		})
		if err := c.speak(ctx, text, "Arrival", epoch); err != nil {
			slog.Warn("arrival greeting playback failed", "error", err)
		}
	}()
}

// speakGreeting runs the tour opening. It holds the generation lock taken in
// StartTour so the first tick waits for the greeting.
func (c *Controller) speakGreeting(ctx context.Context, pos model.Position, epoch uint64) {
	defer c.finishGeneration(epoch)

	text, err := c.content.TourGreeting(ctx, pos)
	if err != nil {
		slog.Warn("tour greeting failed", "error", err)
		c.applyFailure(epoch)
		return
	}
	if err := c.speak(ctx, text, "Welcome", epoch); err != nil {
		return
	}
	c.applyCooldown(epoch)
}

// generate fetches and speaks the next narration. Alternates landmark and
// story content; a landmark search that comes up empty, or hits the daily
// places budget, falls through to a story.
func (c *Controller) generate(ctx context.Context, pos model.Position, epoch uint64) {
	defer c.finishGeneration(epoch)

	c.mu.Lock()
	if c.tour == nil || c.tour.epoch != epoch {
		c.mu.Unlock()
		return
	}
	wantLandmark := c.tour.lastSource != model.SourceLandmark
	excludeLandmarks := append([]string(nil), c.tour.knownLandmarks...)
	excludeStories := append([]string(nil), c.tour.knownStories...)
	storyStep := c.tour.storyStep
	c.mu.Unlock()

	if wantLandmark {
		lm, err := c.findLandmark(ctx, pos, excludeLandmarks)
		switch {
		case errors.Is(err, content.ErrQuotaExhausted):
			slog.Info("places budget spent, switching to stories")
		case err != nil:
			slog.Warn("landmark discovery failed", "error", err)
			c.applyFailure(epoch)
			return
		case lm != nil:
			c.narrateLandmark(ctx, pos, lm, epoch)
			return
		default:
			slog.Debug("no landmark in range, telling a story instead")
		}
	}

	st, err := c.content.FindStory(ctx, pos, excludeStories, storyStep)
	if err != nil {
		slog.Warn("story generation failed", "error", err)
		c.applyFailure(epoch)
		return
	}
	c.narrateStory(ctx, pos, st, epoch)
}

// findLandmark searches the near radius first, then the wide one.
func (c *Controller) findLandmark(ctx context.Context, pos model.Position, exclude []string) (*model.Landmark, error) {
	lm, err := c.content.FindLandmark(ctx, pos, c.cfg.LandmarkRadiusM, exclude)
	if err != nil || lm != nil {
		return lm, err
	}
	return c.content.FindLandmark(ctx, pos, c.cfg.LandmarkRadiusWideM, exclude)
}

func (c *Controller) narrateLandmark(ctx context.Context, pos model.Position, lm *model.Landmark, epoch uint64) {
	// Exclude the landmark before playback: a failed playback must not
	// hand the same landmark out again on the retry.
	c.mu.Lock()
	if c.tour == nil || c.tour.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.tour.knownLandmarks = append(c.tour.knownLandmarks, lm.Name)
	c.mu.Unlock()

	if err := c.speak(ctx, lm.Description, lm.Name, epoch); err != nil {
		return
	}

	c.mu.Lock()
	if c.tour == nil || c.tour.epoch != epoch {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.tour.lastSource = model.SourceLandmark
	c.tour.anchor = pos
	c.tour.anchorSet = true
	c.tour.cooldownUntil = now.Add(time.Duration(c.cfg.Cooldown))
	c.tour.lastNarrationAt = now
	c.mu.Unlock()

	c.stats.AddNarration(model.NarrationLog{
		Timestamp: now,
		Title:     lm.Name,
		Excerpt:   excerpt(lm.Description),
		Source:    model.SourceLandmark.String(),
	})
	slog.Info("narrated landmark", "name", lm.Name, "category", lm.Category)
	logging.LogEvent(&model.TourEvent{
		Type: "NARRATION", Timestamp: now, Lat: pos.Lat, Lon: pos.Lon,
		Detail: map[string]any{"title": lm.Name, "source": model.SourceLandmark.String()},
	})
}

func (c *Controller) narrateStory(ctx context.Context, pos model.Position, st *model.Story, epoch uint64) {
	c.mu.Lock()
	if c.tour == nil || c.tour.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.tour.knownStories = append(c.tour.knownStories, st.Topic)
	c.mu.Unlock()

	if err := c.speak(ctx, st.Text, st.Topic, epoch); err != nil {
		return
	}

	c.mu.Lock()
	if c.tour == nil || c.tour.epoch != epoch {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.tour.lastSource = model.SourceStory
	c.tour.storyStep++
	c.tour.anchor = pos
	c.tour.anchorSet = true
	c.tour.cooldownUntil = now.Add(time.Duration(c.cfg.Cooldown))
	c.tour.lastNarrationAt = now
	c.mu.Unlock()

	c.stats.AddNarration(model.NarrationLog{
		Timestamp: now,
		Title:     st.Topic,
		Excerpt:   excerpt(st.Text),
		Source:    model.SourceStory.String(),
	})
	slog.Info("narrated story", "topic", st.Topic)
	logging.LogEvent(&model.TourEvent{
		Type: "NARRATION", Timestamp: now, Lat: pos.Lat, Lon: pos.Lon,
		Detail: map[string]any{"title": st.Topic, "source": model.SourceStory.String()},
	})
}

// speak plays text and waits for playback to finish. A cancelled tour
// context means the tour ended mid-playback; the caller should discard.
func (c *Controller) speak(ctx context.Context, text, title string, epoch uint64) error {
	if err := c.speaker.Speak(ctx, text, title); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("playback cancelled", "title", title)
		} else {
			slog.Warn("playback failed", "title", title, "error", err)
			c.applyFailure(epoch)
		}
		return err
	}
	return nil
}

// applyCooldown starts the regular post-narration silence.
func (c *Controller) applyCooldown(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tour == nil || c.tour.epoch != epoch {
		return
	}
	now := c.clock.Now()
	c.tour.cooldownUntil = now.Add(time.Duration(c.cfg.Cooldown))
	c.tour.lastNarrationAt = now
}

// applyFailure imposes the short punitive cooldown after a failed attempt.
// The alternation state is left untouched so the next attempt retries the
// same kind of content.
func (c *Controller) applyFailure(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tour == nil || c.tour.epoch != epoch {
		return
	}
	c.tour.cooldownUntil = c.clock.Now().Add(time.Duration(c.cfg.FailureCooldown))
}

func (c *Controller) finishGeneration(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tour != nil && c.tour.epoch == epoch {
		c.generating = false
	}
}

func excerpt(text string) string {
	const max = 120
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}

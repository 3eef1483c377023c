// Package session accumulates per-tour statistics: token and character
// usage, API call counts, walked distance, and the narration log that feeds
// the end-of-tour report.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"walktale/pkg/model"
	"walktale/pkg/tracker"
)

// Manager tracks one tour at a time.
type Manager struct {
	tracker *tracker.Tracker
	ttsMode string

	mu         sync.Mutex
	active     bool
	tourID     string
	startTime  time.Time
	inTokens   int64
	outTokens  int64
	ttsChars   int64
	distanceM  float64
	narrations []model.NarrationLog
}

// New creates a session manager. The tracker supplies API request counts for
// the report.
func New(t *tracker.Tracker, ttsMode string) *Manager {
	return &Manager{tracker: t, ttsMode: ttsMode}
}

// Start begins a new tour session and returns its ID. Any previous session
// state is discarded.
func (m *Manager) Start() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = true
	m.tourID = uuid.NewString()
	m.startTime = time.Now()
	m.inTokens, m.outTokens, m.ttsChars = 0, 0, 0
	m.distanceM = 0
	m.narrations = nil

	if m.tracker != nil {
		m.tracker.Reset()
	}
	return m.tourID
}

// Active reports whether a tour is in progress.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// TourID returns the current tour ID, or empty when idle.
func (m *Manager) TourID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return ""
	}
	return m.tourID
}

// AddTokens records LLM token usage. Wired into the provider's usage
// callback; safe to call when no tour is active.
func (m *Manager) AddTokens(in, out int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.inTokens += in
	m.outTokens += out
}

// AddTTSChars records synthesized characters.
func (m *Manager) AddTTSChars(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.ttsChars += n
}

// AddDistance accumulates walked meters.
func (m *Manager) AddDistance(meters float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active || meters <= 0 {
		return
	}
	m.distanceM += meters
}

// AddNarration appends to the narration log.
func (m *Manager) AddNarration(n model.NarrationLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	m.narrations = append(m.narrations, n)
}

// Stop ends the session and returns the tour report. Returns nil when no
// tour was active.
func (m *Manager) Stop() *model.TourReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil
	}
	m.active = false

	now := time.Now()
	report := &model.TourReport{
		TourID:          m.tourID,
		StartTime:       m.startTime,
		EndTime:         now,
		DurationSeconds: now.Sub(m.startTime).Seconds(),
		DistanceMeters:  m.distanceM,
		LLMInputTokens:  m.inTokens,
		LLMOutputTokens: m.outTokens,
		TTSCharacters:   m.ttsChars,
		TTSMode:         m.ttsMode,
		Narrations:      m.narrations,
	}

	if m.tracker != nil {
		for provider, stats := range m.tracker.Snapshot() {
			report.APIRequestCount += stats.Requests
			switch provider {
			case "maps":
				report.MapsUsage.GeocodingCalls = stats.Requests
			case "osrm":
				report.MapsUsage.DirectionsCalls = stats.Requests
			}
		}
	}
	return report
}

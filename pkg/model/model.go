package model

import (
	"time"
)

// Position is a single GPS fix. Immutable once created; superseded by the
// next fix.
type Position struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m"`
	Timestamp time.Time `json:"timestamp"`

	// Optional sensor data. Negative means not reported.
	Heading float64 `json:"heading"`
	SpeedMS float64 `json:"speed_ms"`
}

// NewPosition builds a fix without heading/speed data.
func NewPosition(lat, lon, accuracy float64, ts time.Time) Position {
	return Position{Lat: lat, Lon: lon, AccuracyM: accuracy, Timestamp: ts, Heading: -1, SpeedMS: -1}
}

// HasHeading reports whether the fix carries a usable compass/GPS heading.
func (p Position) HasHeading() bool {
	return p.Heading >= 0 && p.Heading < 360
}

// ContentSource identifies what kind of narration was last produced.
type ContentSource int

const (
	SourceNone ContentSource = iota
	SourceLandmark
	SourceStory
)

func (s ContentSource) String() string {
	switch s {
	case SourceLandmark:
		return "landmark"
	case SourceStory:
		return "story"
	default:
		return "none"
	}
}

// Landmark is a narratable point of interest near the user.
type Landmark struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	MapsURL     string  `json:"maps_url,omitempty"`
}

// Story is filler narration not tied to a discrete landmark.
type Story struct {
	Topic   string `json:"topic"`
	Text    string `json:"text"`
	WikiURL string `json:"wiki_url,omitempty"`
}

// RouteSource tags which provider produced a route.
type RouteSource string

const (
	RouteSourcePrimary      RouteSource = "primary"
	RouteSourceFallback     RouteSource = "fallback"
	RouteSourceStraightLine RouteSource = "straight-line"
)

// Route is a navigable path to a destination. Replaced wholesale on reroute.
type Route struct {
	Destination   Position    `json:"destination"`
	Polyline      []Position  `json:"polyline"`
	Source        RouteSource `json:"source"`
	TotalDistance float64     `json:"total_distance"` // meters
	TotalDuration float64     `json:"total_duration"` // seconds
}

// Address is reverse-geocoded context for prompt assembly.
type Address struct {
	City         string `json:"city"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	District     string `json:"district,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Locality returns the most specific named area, for story prompts.
func (a Address) Locality() string {
	if a.Neighborhood != "" {
		return a.Neighborhood
	}
	if a.City != "" {
		return a.City
	}
	return a.District
}

// TourEvent is a structured entry in the session event log.
type TourEvent struct {
	Type      string         `json:"type"` // TOUR_START, NARRATION, DEVIATION, ARRIVAL, ...
	Timestamp time.Time      `json:"timestamp"`
	Lat       float64        `json:"lat,omitempty"`
	Lon       float64        `json:"lon,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// NarrationLog records one spoken narration for the tour report.
type NarrationLog struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Excerpt   string    `json:"excerpt"`
	Source    string    `json:"source"` // landmark, story, greeting, arrival
}

// MapsUsage counts external mapping API calls by type.
type MapsUsage struct {
	MapLoads        int64 `json:"map_loads"`
	GeocodingCalls  int64 `json:"geocoding_calls"`
	PlacesCalls     int64 `json:"places_calls"`
	DirectionsCalls int64 `json:"directions_calls"`
}

// TourReport summarizes a finished tour session.
type TourReport struct {
	TourID           string         `json:"tour_id"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	DurationSeconds  float64        `json:"duration_seconds"`
	DistanceMeters   float64        `json:"distance_meters"`
	LLMInputTokens   int64          `json:"llm_input_tokens"`
	LLMOutputTokens  int64          `json:"llm_output_tokens"`
	TTSCharacters    int64          `json:"tts_characters"`
	APIRequestCount  int64          `json:"api_request_count"`
	MapsUsage        MapsUsage      `json:"maps_usage"`
	TTSMode          string         `json:"tts_mode"`
	Narrations       []NarrationLog `json:"narrations"`
}

// Package content turns positions into narration: nearby-landmark
// discoveries, filler stories, greetings, and tour diaries. It owns prompt
// assembly and the daily budget for landmark discovery calls.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"walktale/pkg/config"
	"walktale/pkg/geocode"
	"walktale/pkg/llm"
	"walktale/pkg/model"
	"walktale/pkg/store"
)

// ErrQuotaExhausted is returned when the daily landmark discovery budget is
// spent. Callers fall back to filler stories; it is not a failure.
var ErrQuotaExhausted = errors.New("daily landmark quota exhausted")

const placesQuotaName = "places"

// Provider generates narration content.
type Provider struct {
	llm      llm.Provider
	resolver geocode.Resolver
	quota    store.QuotaStore
	language string
	cfg      config.QuotaConfig
}

// New creates a content provider. resolver may be nil when geocoding is
// disabled; prompts then carry raw coordinates only.
func New(p llm.Provider, resolver geocode.Resolver, quota store.QuotaStore, language string, qcfg config.QuotaConfig) *Provider {
	return &Provider{
		llm:      p,
		resolver: resolver,
		quota:    quota,
		language: language,
		cfg:      qcfg,
	}
}

type promptData struct {
	Lat, Lon    float64
	Locality    string
	Street      string
	Heading     string
	RadiusM     int
	Exclude     []string
	Scope       string
	Language    string
	Question    string
	Destination string
	Minutes     int
	Distance    string
	Stops       []string
}

// landmarkResponse is the JSON shape the model is asked to produce.
type landmarkResponse struct {
	Found     bool    `json:"found"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Narration string  `json:"narration"`
}

type storyResponse struct {
	Topic     string `json:"topic"`
	Narration string `json:"narration"`
}

// FindLandmark asks for one narratable landmark within radiusM of pos.
// Returns (nil, nil) when the model finds nothing in range. Consumes one
// unit of the daily places budget; returns ErrQuotaExhausted when spent.
func (p *Provider) FindLandmark(ctx context.Context, pos model.Position, radiusM float64, exclude []string) (*model.Landmark, error) {
	if p.quota != nil {
		remaining, ok, err := p.quota.Consume(ctx, placesQuotaName, p.cfg.DailyPlacesLimit, time.Duration(p.cfg.ResetWindow))
		if err != nil {
			return nil, fmt.Errorf("quota check failed: %w", err)
		}
		if !ok {
			return nil, ErrQuotaExhausted
		}
		slog.Debug("places quota consumed", "remaining", remaining)
	}

	data := p.baseData(ctx, pos)
	data.RadiusM = int(radiusM)
	data.Exclude = exclude
	if pos.HasHeading() {
		data.Heading = compassDirection(pos.Heading)
	}

	prompt, err := renderPrompt("landmark", data)
	if err != nil {
		return nil, err
	}

	var resp landmarkResponse
	if err := p.llm.GenerateJSON(ctx, "landmark", prompt, &resp); err != nil {
		return nil, fmt.Errorf("landmark discovery failed: %w", err)
	}
	if !resp.Found || resp.Name == "" {
		return nil, nil
	}

	return &model.Landmark{
		Name:        resp.Name,
		Description: resp.Narration,
		Category:    resp.Category,
		Lat:         resp.Lat,
		Lon:         resp.Lon,
	}, nil
}

// FindStory asks for filler narration about the surrounding area. step
// widens the scope on successive calls so back-to-back stories do not all
// cover the same street.
func (p *Provider) FindStory(ctx context.Context, pos model.Position, exclude []string, step int) (*model.Story, error) {
	data := p.baseData(ctx, pos)
	data.Exclude = exclude
	data.Scope = storyScope(step)

	prompt, err := renderPrompt("story", data)
	if err != nil {
		return nil, err
	}

	var resp storyResponse
	if err := p.llm.GenerateJSON(ctx, "story", prompt, &resp); err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}
	if resp.Narration == "" {
		return nil, fmt.Errorf("story generation returned empty narration")
	}

	return &model.Story{Topic: resp.Topic, Text: resp.Narration}, nil
}

// TourGreeting produces the spoken opening for a new tour.
func (p *Provider) TourGreeting(ctx context.Context, pos model.Position) (string, error) {
	prompt, err := renderPrompt("greeting", p.baseData(ctx, pos))
	if err != nil {
		return "", err
	}
	return p.llm.GenerateText(ctx, "greeting", prompt)
}

// ArrivalGreeting produces the spoken congratulation on reaching the
// destination.
func (p *Provider) ArrivalGreeting(ctx context.Context, pos model.Position, destination string) (string, error) {
	data := p.baseData(ctx, pos)
	data.Destination = destination
	prompt, err := renderPrompt("arrival", data)
	if err != nil {
		return "", err
	}
	return p.llm.GenerateText(ctx, "arrival", prompt)
}

// AskGuide answers a free-form question grounded in the current position.
func (p *Provider) AskGuide(ctx context.Context, pos model.Position, question string) (string, error) {
	data := p.baseData(ctx, pos)
	data.Question = question
	prompt, err := renderPrompt("ask", data)
	if err != nil {
		return "", err
	}
	return p.llm.GenerateText(ctx, "ask", prompt)
}

// TravelDiary writes the end-of-tour diary entry from the session report.
func (p *Provider) TravelDiary(ctx context.Context, report *model.TourReport) (string, error) {
	data := promptData{
		Language: p.language,
		Minutes:  int(report.DurationSeconds / 60),
		Distance: formatDistance(report.DistanceMeters),
	}
	for _, n := range report.Narrations {
		if n.Source == model.SourceLandmark.String() {
			data.Stops = append(data.Stops, n.Title)
		}
	}
	prompt, err := renderPrompt("diary", data)
	if err != nil {
		return "", err
	}
	return p.llm.GenerateText(ctx, "diary", prompt)
}

// baseData assembles the shared prompt context, geocoding when available.
func (p *Provider) baseData(ctx context.Context, pos model.Position) promptData {
	data := promptData{Lat: pos.Lat, Lon: pos.Lon, Language: p.language}
	if p.resolver == nil {
		return data
	}
	addr, err := p.resolver.Reverse(ctx, pos)
	if err != nil {
		// Prompts degrade to coordinates only; narration continues.
		slog.Debug("geocode unavailable for prompt", "error", err)
		return data
	}
	data.Locality = addr.Locality()
	data.Street = addr.Street
	return data
}

// storyScope widens the filler subject on successive stories at the same
// spot: street, then neighborhood, then broader city history, then repeat.
func storyScope(step int) string {
	switch step % 3 {
	case 0:
		return "this very street or the immediate surroundings"
	case 1:
		return "this neighborhood, its character and its past"
	default:
		return "the wider city or region and its history"
	}
}

// compassDirection maps a heading in degrees to a spoken direction.
func compassDirection(deg float64) string {
	dirs := []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
	idx := int((deg+22.5)/45.0) % 8
	return dirs[idx]
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(meters))
	}
	return strings.TrimSuffix(fmt.Sprintf("%.1f", meters/1000), ".0") + " km"
}

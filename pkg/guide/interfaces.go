package guide

import (
	"context"
	"time"

	"walktale/pkg/model"
)

// ContentProvider supplies narration content. Implemented by pkg/content;
// mocked in tests.
type ContentProvider interface {
	// FindLandmark returns one narratable landmark within radiusM of pos,
	// or (nil, nil) when nothing is in range.
	FindLandmark(ctx context.Context, pos model.Position, radiusM float64, exclude []string) (*model.Landmark, error)

	// FindStory returns filler narration about the surrounding area.
	FindStory(ctx context.Context, pos model.Position, exclude []string, step int) (*model.Story, error)

	// TourGreeting produces the spoken opening for a new tour.
	TourGreeting(ctx context.Context, pos model.Position) (string, error)

	// ArrivalGreeting produces the spoken congratulation at the destination.
	ArrivalGreeting(ctx context.Context, pos model.Position, destination string) (string, error)
}

// Speaker plays narration. Speak blocks until playback completes or ctx is
// cancelled.
type Speaker interface {
	Speak(ctx context.Context, text, title string) error
	IsSpeaking() bool
	Stop()
}

// Clock abstracts time for the trigger gates so tests can steer it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

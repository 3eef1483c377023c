// Package sampler provides GPS fix sources for the guide: a live websocket
// feed from a companion device, and a simulated walker for development.
package sampler

import (
	"context"

	"walktale/pkg/model"
)

// Sink receives GPS fixes as they arrive.
type Sink func(model.Position)

// Source emits a stream of GPS fixes until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

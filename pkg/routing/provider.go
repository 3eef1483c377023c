// Package routing computes walking routes. A primary and a fallback provider
// are chained behind a selector; when both fail the selector degrades to a
// straight-line estimate so navigation never hard-fails.
package routing

import (
	"context"

	"walktale/pkg/model"
)

// Provider computes a walking route between two positions.
type Provider interface {
	// Route returns a walking route from start to end. The polyline always
	// includes at least the two endpoints.
	Route(ctx context.Context, start, end model.Position) (*model.Route, error)

	// Name identifies the provider in logs and route metadata.
	Name() string
}

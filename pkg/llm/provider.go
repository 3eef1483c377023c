// Package llm defines the interface to generative text providers.
package llm

import (
	"context"
)

// Provider defines the interface for interacting with LLM services.
type Provider interface {
	// GenerateText sends a prompt and returns the text response. name tags
	// the intent (landmark, story, greeting, ...) for logging.
	GenerateText(ctx context.Context, name, prompt string) (string, error)

	// GenerateJSON sends a prompt and unmarshals the response into the target struct.
	GenerateJSON(ctx context.Context, name, prompt string, target any) error

	// HealthCheck verifies that the provider is configured and reachable.
	HealthCheck(ctx context.Context) error
}

// UsageFunc receives token counts after each successful generation.
type UsageFunc func(inputTokens, outputTokens int64)

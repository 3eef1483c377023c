package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"walktale/pkg/tts"
)

// Narrator turns text into speech and plays it. Speak blocks until playback
// finishes so a caller can serialize narrations.
type Narrator struct {
	tts      tts.Provider
	player   Player
	tmpDir   string
	speaking atomic.Bool
}

// NewNarrator creates a Narrator writing synthesized audio under tmpDir.
func NewNarrator(t tts.Provider, p Player, tmpDir string) *Narrator {
	return &Narrator{tts: t, player: p, tmpDir: tmpDir}
}

// Speak synthesizes text and plays it, blocking until playback completes or
// ctx is cancelled. Cancelling stops playback.
func (n *Narrator) Speak(ctx context.Context, text, title string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to speak")
	}

	base := filepath.Join(n.tmpDir, fmt.Sprintf("narration_%d", time.Now().UnixNano()))
	format, err := n.tts.Synthesize(ctx, text, base)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}
	audioFile := base + "." + format

	done := make(chan struct{})
	n.speaking.Store(true)
	defer n.speaking.Store(false)

	if err := n.player.Play(audioFile, func() { close(done) }); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}

	slog.Info("Narrating", "title", title, "chars", len(text), "duration", n.player.Duration())

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.player.Stop()
		return ctx.Err()
	}
}

// IsSpeaking reports whether a narration is currently playing.
func (n *Narrator) IsSpeaking() bool {
	return n.speaking.Load() || n.player.IsPlaying()
}

// Stop cuts off the current narration.
func (n *Narrator) Stop() {
	n.player.Stop()
}

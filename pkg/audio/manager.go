// Package audio provides audio playback for narration.
package audio

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Player defines the interface for audio playback control.
type Player interface {
	// Play starts playback of an audio file. onComplete is called when
	// playback finishes (not when stopped manually).
	Play(filepath string, onComplete func()) error
	// Stop stops current playback.
	Stop()
	// Shutdown stops playback and cleans up residual files.
	Shutdown()
	// IsPlaying returns true if audio is currently playing.
	IsPlaying() bool
	// SetVolume sets playback volume (0.0 to 1.0).
	SetVolume(vol float64)
	// Duration returns the total duration of the current audio.
	Duration() time.Duration
}

// Manager implements Player using gopxl/beep.
type Manager struct {
	mu                 sync.RWMutex
	ctrl               *beep.Ctrl
	volume             float64
	lastNarrationFile  string
	speakerInitialized bool
	currentSampleRate  beep.SampleRate
	streamer           *effects.Volume
	trackStreamer      beep.StreamSeekCloser
	trackFormat        beep.Format
}

// New creates a new Manager instance.
func New() *Manager {
	return &Manager{volume: 1.0}
}

// Play starts playback of an audio file.
func (m *Manager) Play(filepath string, onComplete func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Only one narration at a time. Starting a new one cuts the old off.
	m.stopLocked()

	streamer, format, err := m.decodeStreamer(filepath)
	if err != nil {
		return err
	}

	if err := m.ensureSpeakerInitialized(streamer); err != nil {
		return err
	}

	resampled := beep.Resample(3, format.SampleRate, m.currentSampleRate, streamer)

	volStreamer := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.volume <= 0.01,
	}

	m.streamer = volStreamer
	m.trackStreamer = streamer
	m.trackFormat = format
	m.ctrl = &beep.Ctrl{Streamer: volStreamer}

	speaker.Play(beep.Seq(m.ctrl, beep.Callback(func() {
		// Cleanup off the speaker thread.
		go func() {
			m.mu.Lock()
			m.ctrl = nil
			m.mu.Unlock()
			streamer.Close()

			if onComplete != nil {
				onComplete()
			}
		}()
	})))

	// The previous narration file is safe to delete once the new one is loaded.
	if m.lastNarrationFile != "" && m.lastNarrationFile != filepath {
		oldFile := m.lastNarrationFile
		if err := os.Remove(oldFile); err == nil {
			slog.Debug("Audio: Cleaned up previous narration artifact", "path", oldFile)
		} else if !os.IsNotExist(err) {
			slog.Warn("Audio: Failed to cleanup previous narration artifact", "path", oldFile, "error", err)
		}
	}
	m.lastNarrationFile = filepath

	slog.Debug("Playing audio", "path", filepath)
	return nil
}

// Stop stops current playback.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.trackStreamer != nil {
		m.trackStreamer.Close()
		m.trackStreamer = nil
	}
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
	}
}

func (m *Manager) ensureSpeakerInitialized(streamer beep.StreamSeekCloser) error {
	const targetSampleRate = 48000
	if !m.speakerInitialized {
		err := speaker.Init(beep.SampleRate(targetSampleRate), beep.SampleRate(targetSampleRate).N(time.Second/10))
		if err != nil {
			streamer.Close()
			slog.Error("Failed to initialize speaker", "error", err)
			return err
		}
		m.speakerInitialized = true
		m.currentSampleRate = beep.SampleRate(targetSampleRate)
	}
	return nil
}

// Shutdown stops playback and deletes any residual audio artifacts.
func (m *Manager) Shutdown() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastNarrationFile != "" {
		if err := os.Remove(m.lastNarrationFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("Audio: Failed to cleanup residual artifact on shutdown", "path", m.lastNarrationFile, "error", err)
		}
		m.lastNarrationFile = ""
	}
}

// IsPlaying returns true if audio is currently playing.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil
}

// SetVolume sets playback volume (0.0 to 1.0).
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	m.volume = vol

	if m.streamer != nil {
		speaker.Lock()
		m.streamer.Volume = volumeToPower(vol)
		m.streamer.Silent = vol <= 0.01
		speaker.Unlock()
	}
}

// Duration returns the total duration of the current audio.
func (m *Manager) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trackStreamer == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(m.trackStreamer.Len())
}

func (m *Manager) decodeStreamer(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	// Try MP3 first
	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// Reopen for WAV; a failed MP3 decode leaves the reader position unknown.
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("Failed to decode audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	return streamer, format, nil
}

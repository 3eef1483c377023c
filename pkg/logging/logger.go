// Package logging wires slog handlers and the structured event log from
// configuration.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"walktale/pkg/config"
	"walktale/pkg/model"
)

var (
	eventLogPath string
	eventLogMu   sync.Mutex
)

// Init initializes the logging system based on configuration.
// It returns a cleanup function to close log files.
func Init(cfg *config.LogConfig) (func(), error) {
	rotatePaths(cfg.Server.Path, cfg.Events.Path)
	eventLogPath = cfg.Events.Path

	handler, file, err := setupHandler(cfg.Server.Path, cfg.Server.Level, true)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	slog.SetDefault(slog.New(handler))

	return func() {
		if file != nil {
			file.Close()
		}
	}, nil
}

func setupHandler(path, levelStr string, stdout bool) (slog.Handler, *os.File, error) {
	level := parseLevel(levelStr)

	var w io.Writer = os.Stdout
	var file *os.File
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		if stdout {
			w = io.MultiWriter(os.Stdout, f)
		} else {
			w = f
		}
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), file, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rotatePaths moves existing log files aside at startup (single .old
// generation, matching a fresh file per run).
func rotatePaths(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			os.Rename(p, p+".old")
		}
	}
}

// LogEvent appends a structured tour event to the event log as JSONL.
func LogEvent(event *model.TourEvent) {
	if eventLogPath == "" {
		return
	}

	eventLogMu.Lock()
	defer eventLogMu.Unlock()

	f, err := os.OpenFile(eventLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("failed to open event log", "error", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "error", err)
		return
	}
	f.Write(append(data, '\n'))
}

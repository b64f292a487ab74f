// Package logging builds the slog loggers used across the bot: JSON to
// stderr at the configured level, plus one rotated JSON file per component
// that records everything down to debug.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go.
type Config struct {
	// Dir holds one <component>.log per component. Empty disables files.
	Dir        string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Console receives the level-filtered stream. Defaults to os.Stderr.
	Console io.Writer
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Factory hands out per-component loggers and owns their log files.
type Factory struct {
	cfg     Config
	console slog.Handler

	mu    sync.Mutex
	files map[string]*lumberjack.Logger
}

// New creates a Factory.
func New(cfg Config) *Factory {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	return &Factory{
		cfg:     cfg,
		console: slog.NewJSONHandler(console, &slog.HandlerOptions{Level: cfg.Level}),
		files:   map[string]*lumberjack.Logger{},
	}
}

// Logger returns a logger tagged with component. Loggers for the same
// component share one file.
func (f *Factory) Logger(component string) *slog.Logger {
	h := f.console
	if f.cfg.Dir != "" {
		file := slog.NewJSONHandler(f.file(component), &slog.HandlerOptions{Level: slog.LevelDebug})
		h = fanout{h, file}
	}
	return slog.New(h).With(slog.String("component", component))
}

func (f *Factory) file(component string) *lumberjack.Logger {
	name := fileName(component)
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.files[name]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(f.cfg.Dir, name),
		MaxSize:    f.cfg.MaxSizeMB,
		MaxBackups: f.cfg.MaxBackups,
		MaxAge:     f.cfg.MaxAgeDays,
		Compress:   f.cfg.Compress,
	}
	f.files[name] = w
	return w
}

// Close closes every log file opened so far.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for name, w := range f.files {
		errs = append(errs, w.Close())
		delete(f.files, name)
	}
	return errors.Join(errs...)
}

func fileName(component string) string {
	name := strings.ToLower(strings.TrimSpace(component))
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "orchestrator"
	}
	return name + ".log"
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (h fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, x := range h {
		if x.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, x := range h {
		if x.Enabled(ctx, r.Level) {
			errs = append(errs, x.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(h))
	for i, x := range h {
		out[i] = x.WithAttrs(attrs)
	}
	return out
}

func (h fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(h))
	for i, x := range h {
		out[i] = x.WithGroup(name)
	}
	return out
}

// Package theme persists the dark-mode preference.
package theme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/muesli/termenv"

	"auditline/internal/events"
	"auditline/internal/kv"
)

const DefaultKey = "darkMode"

// Applier receives the effective preference after load and after every change.
type Applier func(dark bool)

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithApplier(fn Applier) Option {
	return func(s *Store) { s.apply = fn }
}

// WithAmbient sets the fallback consulted when nothing is stored.
func WithAmbient(fn func() bool) Option {
	return func(s *Store) { s.ambient = fn }
}

func WithEvents(sink events.Sink) Option {
	return func(s *Store) { s.events.Sink = sink }
}

type Store struct {
	mu      sync.Mutex
	storage kv.Storage
	key     string
	dark    bool
	apply   Applier
	ambient func() bool
	logger  *slog.Logger
	events  events.Writer
}

// TerminalAmbient reports whether stdout is a color terminal with a dark
// background.
func TerminalAmbient() bool {
	out := termenv.NewOutput(os.Stdout)
	if out.Profile == termenv.Ascii {
		return false
	}
	return out.HasDarkBackground()
}

// Open resolves the initial preference: stored value, then the ambient
// signal, then light.
func Open(ctx context.Context, storage kv.Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	s := &Store{storage: storage, key: DefaultKey, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	raw, ok, err := storage.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}
	stored := false
	if ok {
		if err := json.Unmarshal(raw, &s.dark); err != nil {
			s.logger.Warn("ignoring corrupt theme preference", slog.String("key", s.key), slog.Any("err", err))
			s.dark = false
		} else {
			stored = true
		}
	}
	if !stored && s.ambient != nil {
		s.dark = s.ambient()
	}
	s.applyLocked()
	return s, nil
}

func (s *Store) applyLocked() {
	if s.apply != nil {
		s.apply(s.dark)
	}
}

func (s *Store) Dark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Toggle flips the preference and returns the new value.
func (s *Store) Toggle(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.dark
	if err := s.setLocked(ctx, next); err != nil {
		return s.dark, err
	}
	return next, nil
}

func (s *Store) Set(ctx context.Context, dark bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, dark)
}

func (s *Store) setLocked(ctx context.Context, dark bool) error {
	data, _ := json.Marshal(dark)
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist %s: %w", s.key, err)
	}
	prev := s.dark
	s.dark = dark
	s.applyLocked()
	if err := s.events.Append(ctx, events.ThemeChanged, "theme", s.key, events.EventPayload{"from": prev, "to": dark}); err != nil {
		s.logger.Warn("emit event", slog.String("type", events.ThemeChanged), slog.Any("err", err))
	}
	return nil
}

package evidence

import (
	"context"
	"sync"
)

type pendingRead struct {
	done  chan struct{}
	value *string
	err   error
}

// Session tracks the evidence chosen in one create/edit form. Only the most
// recent selection counts: selecting again cancels a read still in flight.
type Session struct {
	mu       sync.Mutex
	encode   func(context.Context, File) (*string, error)
	cancel   context.CancelFunc
	pending  *pendingRead
	selected bool
}

func NewSession() *Session {
	return &Session{encode: Encode}
}

// Select starts reading f in the background, superseding any earlier
// selection. A nil file clears the selection.
func (s *Session) Select(ctx context.Context, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if f == nil {
		s.pending = nil
		s.selected = false
		return
	}
	readCtx, cancel := context.WithCancel(ctx)
	p := &pendingRead{done: make(chan struct{})}
	s.cancel = cancel
	s.pending = p
	s.selected = true
	encode := s.encode
	if encode == nil {
		encode = Encode
	}
	go func() {
		defer close(p.done)
		p.value, p.err = encode(readCtx, f)
	}()
}

// Result waits for the latest selection to finish encoding. selected is
// false when no file has been chosen.
func (s *Session) Result(ctx context.Context) (value *string, selected bool, err error) {
	for {
		s.mu.Lock()
		p, sel := s.pending, s.selected
		s.mu.Unlock()
		if !sel || p == nil {
			return nil, false, nil
		}
		select {
		case <-p.done:
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
		s.mu.Lock()
		current := s.pending
		s.mu.Unlock()
		if current == p {
			return p.value, true, p.err
		}
	}
}

// Resolve returns the evidence to store: the new encoding when a file was
// selected, otherwise previous unchanged.
func (s *Session) Resolve(ctx context.Context, previous *string) (*string, error) {
	value, selected, err := s.Result(ctx)
	if err != nil {
		return nil, err
	}
	if !selected {
		return previous, nil
	}
	return value, nil
}

// Close cancels any read still in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

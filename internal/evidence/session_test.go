package evidence_test

import (
	"context"
	"io"
	"testing"
	"time"

	"auditline/internal/evidence"
)

// gatedFile blocks its first Read until release is closed.
type gatedFile struct {
	name    string
	data    string
	release chan struct{}
}

func (f gatedFile) Name() string        { return f.name }
func (f gatedFile) ContentType() string { return "text/plain" }
func (f gatedFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(&gatedReader{release: f.release, data: f.data}), nil
}

type gatedReader struct {
	release chan struct{}
	data    string
	done    bool
}

func (r *gatedReader) Read(p []byte) (int, error) {
	<-r.release
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestSessionLatestSelectionWins(t *testing.T) {
	ctx := context.Background()
	s := evidence.NewSession()
	defer s.Close()

	slow := gatedFile{name: "slow.txt", data: "stale", release: make(chan struct{})}
	s.Select(ctx, slow)
	s.Select(ctx, evidence.FromBytes("fresh.txt", "text/plain", []byte("fresh")))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, selected, err := s.Result(waitCtx)
	close(slow.release)
	if err != nil || !selected {
		t.Fatalf("result: selected=%v err=%v", selected, err)
	}
	_, data, err := evidence.Decode(*value)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fresh" {
		t.Fatalf("stale read won: %q", data)
	}
}

func TestSessionResolveKeepsPrevious(t *testing.T) {
	s := evidence.NewSession()
	prev := "data:text/plain;base64,b2xk"
	got, err := s.Resolve(context.Background(), &prev)
	if err != nil {
		t.Fatal(err)
	}
	if got != &prev {
		t.Fatalf("expected previous evidence to be retained")
	}

	s.Select(context.Background(), evidence.FromBytes("new.txt", "text/plain", []byte("new")))
	got, err = s.Resolve(context.Background(), &prev)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got == prev {
		t.Fatalf("expected replacement evidence, got %v", got)
	}

	s.Select(context.Background(), nil)
	got, err = s.Resolve(context.Background(), &prev)
	if err != nil || got != &prev {
		t.Fatalf("clearing the selection should fall back to previous")
	}
}

func TestSessionResultHonoursContext(t *testing.T) {
	s := evidence.NewSession()
	defer s.Close()
	gate := gatedFile{name: "never.txt", release: make(chan struct{})}
	defer close(gate.release)
	s.Select(context.Background(), gate)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := s.Result(ctx); err == nil {
		t.Fatalf("expected deadline error")
	}
}

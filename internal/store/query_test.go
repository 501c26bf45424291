package store_test

import (
	"context"
	"testing"
	"time"

	"auditline/internal/domain"
	"auditline/internal/kv"
	"auditline/internal/store"
)

func seed(t *testing.T) *store.Store {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	s := newStore(t, kv.NewMemory(), store.WithClock(clock.Now))
	ctx := context.Background()
	rows := []store.NewObservation{
		{Title: "Leak in pipe", Severity: domain.SeverityHigh, AssignedTo: "Bob"},
		{Title: "Missing sign", Description: "exit door", Severity: domain.SeverityLow, AssignedTo: "Alice"},
		{Title: "Cracked tile", Severity: domain.SeverityMedium, AssignedTo: "Bob"},
	}
	for _, r := range rows {
		if _, err := s.AddObservation(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestListFiltersAndSorts(t *testing.T) {
	s := seed(t)
	all := s.List(store.Filter{})
	if len(all) != 3 || all[0].Title != "Cracked tile" || all[2].Title != "Leak in pipe" {
		t.Fatalf("expected newest first: %+v", all)
	}

	sev := domain.SeverityLow
	if got := s.List(store.Filter{Severity: &sev}); len(got) != 1 || got[0].Title != "Missing sign" {
		t.Fatalf("severity filter: %+v", got)
	}
	if got := s.List(store.Filter{AssignedTo: "Bob"}); len(got) != 2 {
		t.Fatalf("assignee filter: %+v", got)
	}
	if got := s.List(store.Filter{Query: "EXIT"}); len(got) != 1 {
		t.Fatalf("query should match description case-insensitively: %+v", got)
	}

	closed := domain.StatusClosed
	if got := s.List(store.Filter{Status: &closed}); len(got) != 0 {
		t.Fatalf("nothing is closed yet: %+v", got)
	}
}

func TestStats(t *testing.T) {
	empty := newStore(t, kv.NewMemory())
	st := empty.Stats()
	if st.Total != 0 || len(st.ByStatus) != 3 || st.ByStatus[0].Percent != 0 {
		t.Fatalf("empty stats: %+v", st)
	}

	s := seed(t)
	first := s.Observations()[0]
	if _, err := s.UpdateObservationStatus(context.Background(), first.ID, domain.StatusClosed); err != nil {
		t.Fatal(err)
	}
	st = s.Stats()
	if st.Total != 3 || st.Count(domain.StatusOpen) != 2 || st.Count(domain.StatusClosed) != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.ByStatus[0].Status != domain.StatusOpen || st.ByStatus[2].Status != domain.StatusClosed {
		t.Fatalf("status order: %+v", st.ByStatus)
	}
	if p := st.ByStatus[2].Percent; p < 33.3 || p > 33.4 {
		t.Fatalf("closed percent %v", p)
	}
	for _, c := range st.BySeverity {
		if c.Count != 1 {
			t.Fatalf("expected one per severity: %+v", st.BySeverity)
		}
	}
}

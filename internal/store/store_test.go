package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"auditline/internal/domain"
	"auditline/internal/events"
	"auditline/internal/kv"
	"auditline/internal/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(1500 * time.Microsecond)
	return c.t
}

func newStore(t *testing.T, storage kv.Storage, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithLogger(quietLogger)}, opts...)
	s, err := store.Open(context.Background(), storage, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func mustAdd(t *testing.T, s *store.Store, title string) domain.Observation {
	t.Helper()
	o, err := s.AddObservation(context.Background(), store.NewObservation{
		Title:      title,
		Severity:   domain.SeverityMedium,
		AssignedTo: "Bob",
	})
	if err != nil {
		t.Fatalf("add %s: %v", title, err)
	}
	return o
}

func TestAddObservationIDsAreUnique(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		o := mustAdd(t, s, "finding")
		if seen[o.ID] {
			t.Fatalf("duplicate id %s", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestAddObservationRegeneratesCollidingID(t *testing.T) {
	ids := []string{"a", "a", "a", "b"}
	gen := func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	s := newStore(t, kv.NewMemory(), store.WithIDGenerator(gen))
	first := mustAdd(t, s, "one")
	second := mustAdd(t, s, "two")
	if first.ID != "a" || second.ID != "b" {
		t.Fatalf("expected ids a, b; got %s, %s", first.ID, second.ID)
	}
}

func TestAddObservationDefaults(t *testing.T) {
	activated := time.Now().UTC().Truncate(time.Millisecond)
	s := newStore(t, kv.NewMemory())
	o, err := s.AddObservation(context.Background(), store.NewObservation{Title: "t", AssignedTo: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusOpen {
		t.Fatalf("new observation status %q", o.Status)
	}
	if o.Severity != domain.SeverityHigh {
		t.Fatalf("default severity %q", o.Severity)
	}
	if o.CreatedAt.Before(activated) {
		t.Fatalf("createdAt %v before activation %v", o.CreatedAt, activated)
	}
	if o.UpdatedAt != nil {
		t.Fatalf("updatedAt should be unset on create")
	}
	if _, err := s.AddObservation(context.Background(), store.NewObservation{Severity: "Critical"}); err == nil {
		t.Fatalf("expected invalid severity error")
	}
}

func TestNewObservationsArePrepended(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	a := mustAdd(t, s, "a")
	b := mustAdd(t, s, "b")
	got := s.Observations()
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", got)
	}
}

func TestUpdateStatusOnlyTouchesStatus(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	mustAdd(t, s, "other")
	o := mustAdd(t, s, "target")
	before := s.Observations()

	res, err := s.UpdateObservationStatus(context.Background(), o.ID, domain.StatusInProgress)
	if err != nil || res != store.Updated {
		t.Fatalf("update status: %v %v", res, err)
	}
	after := s.Observations()
	want := before[0]
	want.Status = domain.StatusInProgress
	if !reflect.DeepEqual(after[0], want) {
		t.Fatalf("unexpected record change:\n got %+v\nwant %+v", after[0], want)
	}
	if !reflect.DeepEqual(after[1], before[1]) {
		t.Fatalf("unrelated record changed")
	}
}

func TestUpdateStatusUnknownIDLeavesStateAndStorage(t *testing.T) {
	mem := kv.NewMemory()
	s := newStore(t, mem)
	mustAdd(t, s, "a")
	before := s.Observations()
	writes := mem.Writes()

	res, err := s.UpdateObservationStatus(context.Background(), "missing", domain.StatusClosed)
	if err != nil {
		t.Fatal(err)
	}
	if res != store.NotFound {
		t.Fatalf("expected NotFound, got %s", res)
	}
	if !errors.Is(res.Err("missing"), store.ErrNotFound) {
		t.Fatalf("NotFound.Err should wrap ErrNotFound")
	}
	if !reflect.DeepEqual(before, s.Observations()) || mem.Writes() != writes {
		t.Fatalf("unknown id must not change anything")
	}
}

func TestUpdateObservationMergesPatch(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := newStore(t, kv.NewMemory(), store.WithClock(clock.Now))
	ev := "data:text/plain;base64,aGk="
	o, err := s.AddObservation(context.Background(), store.NewObservation{
		Title: "Leak", Description: "drip", Severity: domain.SeverityLow, AssignedTo: "Bob", Evidence: &ev,
	})
	if err != nil {
		t.Fatal(err)
	}
	title := "Leak in pipe"
	sev := domain.SeverityHigh
	res, err := s.UpdateObservation(context.Background(), o.ID, store.Patch{Title: &title, Severity: &sev})
	if err != nil || res != store.Updated {
		t.Fatalf("update: %v %v", res, err)
	}
	got, ok := s.Observation(o.ID)
	if !ok {
		t.Fatal("observation vanished")
	}
	if got.Title != title || got.Severity != sev || got.Description != "drip" || got.AssignedTo != "Bob" {
		t.Fatalf("bad merge: %+v", got)
	}
	if got.Evidence == nil || *got.Evidence != ev {
		t.Fatalf("evidence should be retained")
	}
	if got.ID != o.ID || !got.CreatedAt.Equal(o.CreatedAt) {
		t.Fatalf("id/createdAt must not change")
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.After(o.CreatedAt) {
		t.Fatalf("updatedAt not stamped: %v", got.UpdatedAt)
	}

	res, err = s.UpdateObservation(context.Background(), o.ID, store.Patch{ClearEvidence: true})
	if err != nil || res != store.Updated {
		t.Fatal(err)
	}
	got, _ = s.Observation(o.ID)
	if got.Evidence != nil {
		t.Fatalf("evidence should be cleared")
	}

	res, err = s.UpdateObservation(context.Background(), "missing", store.Patch{Title: &title})
	if err != nil || res != store.NotFound {
		t.Fatalf("expected NotFound, got %v %v", res, err)
	}
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	a := mustAdd(t, s, "a")
	b := mustAdd(t, s, "b")
	c := mustAdd(t, s, "c")

	res, err := s.DeleteObservation(context.Background(), b.ID)
	if err != nil || res != store.Updated {
		t.Fatalf("delete: %v %v", res, err)
	}
	got := s.Observations()
	if len(got) != 2 || got[0].ID != c.ID || got[1].ID != a.ID {
		t.Fatalf("unexpected remaining records %+v", got)
	}
	res, err = s.DeleteObservation(context.Background(), b.ID)
	if err != nil || res != store.NotFound {
		t.Fatalf("second delete should be a NotFound no-op: %v %v", res, err)
	}
	if len(s.Observations()) != 2 {
		t.Fatalf("second delete changed the collection")
	}
}

func TestRoundTripThroughStorage(t *testing.T) {
	mem := kv.NewMemory()
	s := newStore(t, mem)
	if _, err := s.AddAssignee(context.Background(), "Bob"); err != nil {
		t.Fatal(err)
	}
	ev := "data:image/png;base64,iVBORw0KGgo="
	first, err := s.AddObservation(context.Background(), store.NewObservation{
		Title: "Broken rail", Description: "north stair", Severity: domain.SeverityLow, AssignedTo: "Bob", Evidence: &ev,
	})
	if err != nil {
		t.Fatal(err)
	}
	mustAdd(t, s, "Loose cable")
	desc := "rewired"
	if _, err := s.UpdateObservation(context.Background(), first.ID, store.Patch{Description: &desc}); err != nil {
		t.Fatal(err)
	}

	reloaded := newStore(t, mem)
	if !reflect.DeepEqual(s.Observations(), reloaded.Observations()) {
		t.Fatalf("observations differ after reload:\n%+v\n%+v", s.Observations(), reloaded.Observations())
	}
	if !reflect.DeepEqual(s.Assignees(), reloaded.Assignees()) {
		t.Fatalf("assignees differ after reload")
	}
}

func TestAddAssigneeTrimsAndRejectsDuplicates(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	name, err := s.AddAssignee(context.Background(), "  Alice  ")
	if err != nil || name != "Alice" {
		t.Fatalf("add: %q %v", name, err)
	}
	if _, err := s.AddAssignee(context.Background(), "Alice"); !errors.Is(err, store.ErrDuplicateAssignee) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := s.AddAssignee(context.Background(), "   "); !errors.Is(err, store.ErrEmptyAssignee) {
		t.Fatalf("expected empty error, got %v", err)
	}
	if got := s.Assignees(); !reflect.DeepEqual(got, []string{"Alice"}) {
		t.Fatalf("unexpected assignees %v", got)
	}
	if !s.HasAssignee("Alice") || s.HasAssignee("alice") {
		t.Fatalf("HasAssignee should match exactly")
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	s := newStore(t, kv.NewMemory(), store.WithEvents(rec))
	if _, err := s.AddAssignee(ctx, "Bob"); err != nil {
		t.Fatal(err)
	}
	o, err := s.AddObservation(ctx, store.NewObservation{Title: "Leak in pipe", Severity: domain.SeverityHigh, AssignedTo: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	all := s.Observations()
	if len(all) != 1 || all[0].Status != domain.StatusOpen || all[0].AssignedTo != "Bob" || all[0].Evidence != nil {
		t.Fatalf("unexpected collection %+v", all)
	}
	if _, err := s.UpdateObservationStatus(ctx, o.ID, domain.StatusClosed); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Observation(o.ID)
	if got.Status != domain.StatusClosed || !got.CreatedAt.Equal(o.CreatedAt) {
		t.Fatalf("unexpected record after close %+v", got)
	}
	if _, err := s.DeleteObservation(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if len(s.Observations()) != 0 {
		t.Fatalf("expected empty collection")
	}

	var types []string
	for _, e := range rec.Events() {
		types = append(types, e.Type)
	}
	want := []string{events.AssigneeAdded, events.ObservationCreated, events.ObservationStatusChanged, events.ObservationDeleted}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("events %v, want %v", types, want)
	}
}

func TestFailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)
	o := mustAdd(t, s, "keep")
	if _, err := s.AddAssignee(ctx, "Bob"); err != nil {
		t.Fatal(err)
	}
	before := s.Observations()

	boom := errors.New("quota exceeded")
	mem.FailWrites = boom
	if _, err := s.AddObservation(ctx, store.NewObservation{Title: "lost"}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := s.UpdateObservationStatus(ctx, o.ID, domain.StatusClosed); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	title := "changed"
	if _, err := s.UpdateObservation(ctx, o.ID, store.Patch{Title: &title}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := s.DeleteObservation(ctx, o.ID); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := s.AddAssignee(ctx, "Carol"); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Observations()) {
		t.Fatalf("in-memory state diverged after failed writes")
	}
	if !reflect.DeepEqual(s.Assignees(), []string{"Bob"}) {
		t.Fatalf("assignee rollback failed: %v", s.Assignees())
	}
}

func TestCorruptPayloadStartsEmptyAndKeepsBackup(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	bad := []byte(`[{"id":"1","severity":"Critical","status":"Open"}]`)
	if err := mem.Set(ctx, store.DefaultObservationsKey, bad); err != nil {
		t.Fatal(err)
	}
	if err := mem.Set(ctx, store.DefaultAssigneesKey, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	s := newStore(t, mem)
	if len(s.Observations()) != 0 || len(s.Assignees()) != 0 {
		t.Fatalf("corrupt payload should load as empty")
	}
	backup, ok, err := mem.Get(ctx, store.DefaultObservationsKey+".corrupt")
	if err != nil || !ok || string(backup) != string(bad) {
		t.Fatalf("expected raw payload backup, got %q ok=%v err=%v", backup, ok, err)
	}
	if _, ok, _ := mem.Get(ctx, store.DefaultAssigneesKey+".corrupt"); !ok {
		t.Fatalf("expected assignee backup")
	}
}

func TestCloseFlushesAndRejectsWrites(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem, store.WithKeys("obs", "people"))
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"obs", "people"} {
		v, ok, _ := mem.Get(ctx, key)
		if !ok || string(v) != "[]" {
			t.Fatalf("close should flush %s as an empty array, got %q", key, v)
		}
	}
	if _, err := s.AddAssignee(ctx, "Bob"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSnapshotsAreDetached(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	ev := "data:text/plain;base64,aGk="
	o, err := s.AddObservation(context.Background(), store.NewObservation{Title: "t", Evidence: &ev})
	if err != nil {
		t.Fatal(err)
	}
	ev = "mutated by caller"
	snap := s.Observations()
	snap[0].Title = "changed"
	*snap[0].Evidence = "changed"
	got, _ := s.Observation(o.ID)
	if got.Title != "t" || *got.Evidence != "data:text/plain;base64,aGk=" {
		t.Fatalf("store state leaked through snapshot: %+v", got)
	}
}

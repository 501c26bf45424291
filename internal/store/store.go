// Package store holds the observation and assignee collections and writes
// every change through to durable key-value storage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"auditline/internal/domain"
	"auditline/internal/events"
	"auditline/internal/kv"
)

const (
	DefaultObservationsKey = "audit-observations"
	DefaultAssigneesKey    = "audit-assignees"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyAssignee     = errors.New("assignee name is empty")
	ErrDuplicateAssignee = errors.New("assignee already exists")
	ErrClosed            = errors.New("store closed")
)

// Result reports whether a targeted mutation found its record.
type Result int

const (
	Updated Result = iota + 1
	NotFound
)

func (r Result) String() string {
	switch r {
	case Updated:
		return "updated"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Err turns NotFound into an error wrapping ErrNotFound.
func (r Result) Err(id string) error {
	if r == NotFound {
		return fmt.Errorf("observation %s: %w", id, ErrNotFound)
	}
	return nil
}

// NewObservation carries the caller-supplied fields of a new record.
// An empty Severity defaults to High.
type NewObservation struct {
	Title       string
	Description string
	Severity    domain.Severity
	AssignedTo  string
	Evidence    *string
}

// Patch lists the fields to overwrite. Nil fields keep their current value.
// ClearEvidence removes evidence and takes precedence over Evidence.
type Patch struct {
	Title         *string
	Description   *string
	Severity      *domain.Severity
	Status        *domain.Status
	AssignedTo    *string
	Evidence      *string
	ClearEvidence bool
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithKeys(observationsKey, assigneesKey string) Option {
	return func(s *Store) {
		if observationsKey != "" {
			s.observationsKey = observationsKey
		}
		if assigneesKey != "" {
			s.assigneesKey = assigneesKey
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithEvents(sink events.Sink) Option {
	return func(s *Store) { s.events.Sink = sink }
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

type Store struct {
	mu              sync.Mutex
	storage         kv.Storage
	observationsKey string
	assigneesKey    string
	observations    []domain.Observation
	assignees       []string
	logger          *slog.Logger
	now             func() time.Time
	newID           func() (string, error)
	events          events.Writer
	closed          bool
}

// Open loads both collections from storage. Missing or corrupt values start
// empty; a read error from storage is returned.
func Open(ctx context.Context, storage kv.Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	s := &Store{
		storage:         storage,
		observationsKey: DefaultObservationsKey,
		assigneesKey:    DefaultAssigneesKey,
		logger:          slog.Default(),
		now:             time.Now,
		newID:           newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events.Now = s.now

	obs, err := loadCollection[domain.Observation](ctx, s, s.observationsKey)
	if err != nil {
		return nil, err
	}
	names, err := loadCollection[string](ctx, s, s.assigneesKey)
	if err != nil {
		return nil, err
	}
	s.observations = obs
	s.assignees = names
	s.logger.Debug("store loaded",
		slog.Int("observations", len(obs)),
		slog.Int("assignees", len(names)))
	return s, nil
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func loadCollection[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	raw, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	out := []T{}
	if !ok {
		return out, nil
	}
	var decoded []T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn("discarding corrupt stored collection",
			slog.String("key", key),
			slog.String("backup_key", key+".corrupt"),
			slog.Any("err", err))
		if berr := s.storage.Set(ctx, key+".corrupt", raw); berr != nil {
			s.logger.Error("backup corrupt collection", slog.String("key", key), slog.Any("err", berr))
		}
		return out, nil
	}
	if decoded != nil {
		out = decoded
	}
	return out, nil
}

// Close writes both collections one last time. Later mutations fail with
// ErrClosed; reads keep working.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(
		s.persist(ctx, s.observationsKey, s.observations),
		s.persist(ctx, s.assigneesKey, s.assignees),
	)
}

func (s *Store) persist(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	if err := s.storage.Set(ctx, key, data); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) emit(ctx context.Context, evtType, kind, id string, payload events.EventPayload) {
	if err := s.events.Append(ctx, evtType, kind, id, payload); err != nil {
		s.logger.Warn("emit event", slog.String("type", evtType), slog.Any("err", err))
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.observations {
		if s.observations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) uniqueID() (string, error) {
	for {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		if s.indexOf(id) < 0 {
			return id, nil
		}
	}
}

// AddObservation stores a new Open observation at the front of the list.
func (s *Store) AddObservation(ctx context.Context, in NewObservation) (domain.Observation, error) {
	if in.Severity == "" {
		in.Severity = domain.SeverityHigh
	}
	if !in.Severity.Valid() {
		return domain.Observation{}, fmt.Errorf("invalid severity %q", in.Severity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Observation{}, ErrClosed
	}
	id, err := s.uniqueID()
	if err != nil {
		return domain.Observation{}, err
	}
	obs := domain.Observation{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Severity:    in.Severity,
		Status:      domain.StatusOpen,
		AssignedTo:  in.AssignedTo,
		Evidence:    in.Evidence,
		CreatedAt:   s.timestamp(),
	}
	obs = obs.Clone()

	prev := s.observations
	next := make([]domain.Observation, 0, len(prev)+1)
	next = append(next, obs)
	next = append(next, prev...)
	s.observations = next
	if err := s.persist(ctx, s.observationsKey, s.observations); err != nil {
		s.observations = prev
		return domain.Observation{}, err
	}
	s.emit(ctx, events.ObservationCreated, "observation", obs.ID, events.EventPayload{
		"severity":    string(obs.Severity),
		"assigned_to": obs.AssignedTo,
	})
	return obs.Clone(), nil
}

// UpdateObservationStatus replaces only the status of the matching record.
func (s *Store) UpdateObservationStatus(ctx context.Context, id string, status domain.Status) (Result, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("invalid status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	i := s.indexOf(id)
	if i < 0 {
		return NotFound, nil
	}
	prev := s.observations[i]
	s.observations[i].Status = status
	if err := s.persist(ctx, s.observationsKey, s.observations); err != nil {
		s.observations[i] = prev
		return 0, err
	}
	s.emit(ctx, events.ObservationStatusChanged, "observation", id, events.EventPayload{
		"from": string(prev.Status),
		"to":   string(status),
	})
	return Updated, nil
}

// UpdateObservation merges patch over the matching record and stamps
// updatedAt. ID and CreatedAt never change.
func (s *Store) UpdateObservation(ctx context.Context, id string, patch Patch) (Result, error) {
	if patch.Severity != nil && !patch.Severity.Valid() {
		return 0, fmt.Errorf("invalid severity %q", *patch.Severity)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return 0, fmt.Errorf("invalid status %q", *patch.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	i := s.indexOf(id)
	if i < 0 {
		return NotFound, nil
	}
	prev := s.observations[i]
	next := applyPatch(prev.Clone(), patch)
	ts := s.timestamp()
	next.UpdatedAt = &ts
	s.observations[i] = next
	if err := s.persist(ctx, s.observationsKey, s.observations); err != nil {
		s.observations[i] = prev
		return 0, err
	}
	s.emit(ctx, events.ObservationUpdated, "observation", id, events.EventPayload{
		"fields": patch.fields(),
	})
	return Updated, nil
}

func applyPatch(o domain.Observation, p Patch) domain.Observation {
	if p.Title != nil {
		o.Title = *p.Title
	}
	if p.Description != nil {
		o.Description = *p.Description
	}
	if p.Severity != nil {
		o.Severity = *p.Severity
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.AssignedTo != nil {
		o.AssignedTo = *p.AssignedTo
	}
	switch {
	case p.ClearEvidence:
		o.Evidence = nil
	case p.Evidence != nil:
		ev := *p.Evidence
		o.Evidence = &ev
	}
	return o
}

func (p Patch) fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Severity != nil {
		out = append(out, "severity")
	}
	if p.Status != nil {
		out = append(out, "status")
	}
	if p.AssignedTo != nil {
		out = append(out, "assignedTo")
	}
	if p.Evidence != nil || p.ClearEvidence {
		out = append(out, "evidence")
	}
	return out
}

// DeleteObservation removes the matching record. Deleting an unknown id is
// a NotFound no-op.
func (s *Store) DeleteObservation(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	i := s.indexOf(id)
	if i < 0 {
		return NotFound, nil
	}
	prev := s.observations
	next := make([]domain.Observation, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	s.observations = next
	if err := s.persist(ctx, s.observationsKey, s.observations); err != nil {
		s.observations = prev
		return 0, err
	}
	s.emit(ctx, events.ObservationDeleted, "observation", id, nil)
	return Updated, nil
}

// AddAssignee appends a trimmed, unique name and returns it.
func (s *Store) AddAssignee(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyAssignee
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	for _, existing := range s.assignees {
		if existing == name {
			return "", fmt.Errorf("%q: %w", name, ErrDuplicateAssignee)
		}
	}
	prev := s.assignees
	next := make([]string, 0, len(prev)+1)
	next = append(next, prev...)
	next = append(next, name)
	s.assignees = next
	if err := s.persist(ctx, s.assigneesKey, s.assignees); err != nil {
		s.assignees = prev
		return "", err
	}
	s.emit(ctx, events.AssigneeAdded, "assignee", name, nil)
	return name, nil
}

// Observations returns a snapshot in stored (newest-first) order.
func (s *Store) Observations() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Observation, len(s.observations))
	for i, o := range s.observations {
		out[i] = o.Clone()
	}
	return out
}

func (s *Store) Assignees() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.assignees...)
}

// HasAssignee reports whether name is a known assignee.
func (s *Store) HasAssignee(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignees {
		if a == name {
			return true
		}
	}
	return false
}

func (s *Store) Observation(id string) (domain.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Observation{}, false
	}
	return s.observations[i].Clone(), true
}

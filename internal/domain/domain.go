package domain

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Severities lists every severity in display order.
func Severities() []Severity {
	return []Severity{SeverityHigh, SeverityMedium, SeverityLow}
}

// ParseSeverity accepts the canonical spelling or a case-insensitive match.
func ParseSeverity(s string) (Severity, error) {
	for _, v := range Severities() {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid severity %q (want High, Medium or Low)", s)
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %q", string(s))
	}
	return []byte(s), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusClosed     Status = "Closed"
)

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusClosed}
}

// ParseStatus also accepts snake/kebab spellings such as in_progress.
func ParseStatus(s string) (Status, error) {
	for _, v := range Statuses() {
		if strings.EqualFold(normalizeStatus(s), string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid status %q (want Open, In Progress or Closed)", s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %q", string(s))
	}
	return []byte(s), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Observation is a single recorded audit finding.
type Observation struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	AssignedTo  string     `json:"assignedTo"`
	Evidence    *string    `json:"evidence"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with o.
func (o Observation) Clone() Observation {
	c := o
	if o.Evidence != nil {
		ev := *o.Evidence
		c.Evidence = &ev
	}
	if o.UpdatedAt != nil {
		ts := *o.UpdatedAt
		c.UpdatedAt = &ts
	}
	return c
}

func normalizeStatus(s string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s))
}

package store

import (
	"sort"
	"strings"

	"auditline/internal/domain"
)

// Filter narrows List. Zero fields match everything; Query is a
// case-insensitive substring match on title and description.
type Filter struct {
	Status     *domain.Status
	Severity   *domain.Severity
	AssignedTo string
	Query      string
}

func (f Filter) match(o domain.Observation) bool {
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.Severity != nil && o.Severity != *f.Severity {
		return false
	}
	if f.AssignedTo != "" && o.AssignedTo != f.AssignedTo {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(o.Title), q) && !strings.Contains(strings.ToLower(o.Description), q) {
			return false
		}
	}
	return true
}

// List returns matching observations, newest createdAt first.
func (s *Store) List(f Filter) []domain.Observation {
	all := s.Observations()
	out := make([]domain.Observation, 0, len(all))
	for _, o := range all {
		if f.match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type StatusCount struct {
	Status  domain.Status `json:"status"`
	Count   int           `json:"count"`
	Percent float64       `json:"percent"`
}

type SeverityCount struct {
	Severity domain.Severity `json:"severity"`
	Count    int             `json:"count"`
}

// Stats is the dashboard summary.
type Stats struct {
	Total      int             `json:"total"`
	ByStatus   []StatusCount   `json:"byStatus"`
	BySeverity []SeverityCount `json:"bySeverity"`
	Assignees  int             `json:"assignees"`
}

func (s *Store) Stats() Stats {
	obs := s.Observations()
	st := Stats{Total: len(obs), Assignees: len(s.Assignees())}
	denom := max(1, len(obs))
	for _, status := range domain.Statuses() {
		n := 0
		for _, o := range obs {
			if o.Status == status {
				n++
			}
		}
		st.ByStatus = append(st.ByStatus, StatusCount{
			Status:  status,
			Count:   n,
			Percent: float64(n) / float64(denom) * 100,
		})
	}
	for _, sev := range domain.Severities() {
		n := 0
		for _, o := range obs {
			if o.Severity == sev {
				n++
			}
		}
		st.BySeverity = append(st.BySeverity, SeverityCount{Severity: sev, Count: n})
	}
	return st
}

// Count returns the status count from a Stats value.
func (st Stats) Count(status domain.Status) int {
	for _, c := range st.ByStatus {
		if c.Status == status {
			return c.Count
		}
	}
	return 0
}

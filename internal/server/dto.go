package server

import (
	"time"

	"auditline/internal/domain"
	"auditline/internal/store"
)

// Request payloads

type CreateObservationRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description *string `json:"description,omitempty"`
	Severity    *string `json:"severity,omitempty" enum:"High,Medium,Low"`
	AssignedTo  string  `json:"assignedTo" minLength:"1"`
	Evidence    *string `json:"evidence,omitempty" doc:"data URI"`
}

type UpdateObservationRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Severity      *string `json:"severity,omitempty" enum:"High,Medium,Low"`
	Status        *string `json:"status,omitempty" enum:"Open,In Progress,Closed"`
	AssignedTo    *string `json:"assignedTo,omitempty"`
	Evidence      *string `json:"evidence,omitempty" doc:"data URI replacing the current evidence"`
	ClearEvidence bool    `json:"clearEvidence,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"Open,In Progress,Closed"`
}

type AddAssigneeRequest struct {
	Name string `json:"name"`
}

type ThemeRequest struct {
	DarkMode bool `json:"darkMode"`
}

// Response payloads

type ObservationResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	AssignedTo   string     `json:"assignedTo"`
	Evidence     *string    `json:"evidence"`
	EvidenceKind string     `json:"evidenceKind" enum:"none,image,attachment"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

type AssigneeResponse struct {
	Name string `json:"name"`
}

type ThemeResponse struct {
	DarkMode bool `json:"darkMode"`
}

type StatsResponse = store.Stats

func observationResponse(o domain.Observation, kind string) ObservationResponse {
	return ObservationResponse{
		ID:           o.ID,
		Title:        o.Title,
		Description:  o.Description,
		Severity:     string(o.Severity),
		Status:       string(o.Status),
		AssignedTo:   o.AssignedTo,
		Evidence:     o.Evidence,
		EvidenceKind: kind,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

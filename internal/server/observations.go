package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"auditline/internal/domain"
	"auditline/internal/evidence"
	"auditline/internal/store"
	"auditline/internal/theme"
)

type observationPath struct {
	ID string `path:"id"`
}

type observationOutput struct {
	Body ObservationResponse `json:"body"`
}

func toResponse(o domain.Observation) *observationOutput {
	return &observationOutput{Body: observationResponse(o, evidence.KindOf(o.Evidence).String())}
}

func mapObservations(items []domain.Observation) []ObservationResponse {
	out := make([]ObservationResponse, 0, len(items))
	for _, o := range items {
		out = append(out, observationResponse(o, evidence.KindOf(o.Evidence).String()))
	}
	return out
}

// Evidence travels inline as a data URI, so bodies carrying it are not capped.
const unlimitedBody int64 = -1

// reloadObservation reads back a record after a mutation. A concurrent delete
// in between surfaces as 404.
func reloadObservation(s *store.Store, id string) (*observationOutput, error) {
	o, ok := s.Observation(id)
	if !ok {
		return nil, handleError(store.NotFound.Err(id))
	}
	return toResponse(o), nil
}

func validateEvidence(ev *string) error {
	if ev == nil {
		return nil
	}
	if err := evidence.Validate(*ev); err != nil {
		return badRequest("invalid_evidence", err.Error(), nil)
	}
	return nil
}

func requireAssignee(s *store.Store, name string) error {
	if !s.HasAssignee(name) {
		return badRequest("unknown_assignee", "assignee "+name+" is not known", map[string]any{"assignedTo": name})
	}
	return nil
}

func parseSeverity(raw string) (domain.Severity, error) {
	sev, err := domain.ParseSeverity(raw)
	if err != nil {
		return "", badRequest("bad_request", err.Error(), nil)
	}
	return sev, nil
}

func parseStatus(raw string) (domain.Status, error) {
	st, err := domain.ParseStatus(raw)
	if err != nil {
		return "", badRequest("bad_request", err.Error(), nil)
	}
	return st, nil
}

func registerObservations(api huma.API, cfg Config) {
	s := cfg.Store

	huma.Register(api, huma.Operation{
		OperationID:   "create-observation",
		Method:        http.MethodPost,
		Path:          "/observations",
		Summary:       "Create observation",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  unlimitedBody,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateObservationRequest `json:"body"`
	}) (*observationOutput, error) {
		title := strings.TrimSpace(input.Body.Title)
		if title == "" {
			return nil, badRequest("bad_request", "title is required", nil)
		}
		assignee := strings.TrimSpace(input.Body.AssignedTo)
		if assignee == "" {
			return nil, badRequest("bad_request", "assignedTo is required", nil)
		}
		if err := requireAssignee(s, assignee); err != nil {
			return nil, err
		}
		sev := cfg.DefaultSeverity
		if input.Body.Severity != nil {
			var err error
			if sev, err = parseSeverity(*input.Body.Severity); err != nil {
				return nil, err
			}
		}
		if err := validateEvidence(input.Body.Evidence); err != nil {
			return nil, err
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		o, err := s.AddObservation(ctx, store.NewObservation{
			Title:       title,
			Description: desc,
			Severity:    sev,
			AssignedTo:  assignee,
			Evidence:    input.Body.Evidence,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return toResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-observations",
		Method:      http.MethodGet,
		Path:        "/observations",
		Summary:     "List observations, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Severity   string `query:"severity"`
		AssignedTo string `query:"assignedTo"`
		Query      string `query:"q"`
	}) (*struct {
		Body []ObservationResponse `json:"body"`
	}, error) {
		f := store.Filter{AssignedTo: input.AssignedTo, Query: input.Query}
		if input.Status != "" {
			st, err := parseStatus(input.Status)
			if err != nil {
				return nil, err
			}
			f.Status = &st
		}
		if input.Severity != "" {
			sev, err := parseSeverity(input.Severity)
			if err != nil {
				return nil, err
			}
			f.Severity = &sev
		}
		return &struct {
			Body []ObservationResponse `json:"body"`
		}{Body: mapObservations(s.List(f))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-observation",
		Method:      http.MethodGet,
		Path:        "/observations/{id}",
		Summary:     "Get observation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *observationPath) (*observationOutput, error) {
		o, ok := s.Observation(input.ID)
		if !ok {
			return nil, handleError(store.NotFound.Err(input.ID))
		}
		return toResponse(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "update-observation",
		Method:       http.MethodPatch,
		Path:         "/observations/{id}",
		Summary:      "Update observation fields",
		MaxBodyBytes: unlimitedBody,
		Errors:       []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body UpdateObservationRequest `json:"body"`
	}) (*observationOutput, error) {
		b := input.Body
		if b.Evidence != nil && b.ClearEvidence {
			return nil, badRequest("bad_request", "evidence and clearEvidence are mutually exclusive", nil)
		}
		patch := store.Patch{Description: b.Description, Evidence: b.Evidence, ClearEvidence: b.ClearEvidence}
		if b.Title != nil {
			title := strings.TrimSpace(*b.Title)
			if title == "" {
				return nil, badRequest("bad_request", "title must not be empty", nil)
			}
			patch.Title = &title
		}
		if b.AssignedTo != nil {
			assignee := strings.TrimSpace(*b.AssignedTo)
			if err := requireAssignee(s, assignee); err != nil {
				return nil, err
			}
			patch.AssignedTo = &assignee
		}
		if b.Severity != nil {
			sev, err := parseSeverity(*b.Severity)
			if err != nil {
				return nil, err
			}
			patch.Severity = &sev
		}
		if b.Status != nil {
			st, err := parseStatus(*b.Status)
			if err != nil {
				return nil, err
			}
			patch.Status = &st
		}
		if err := validateEvidence(b.Evidence); err != nil {
			return nil, err
		}
		res, err := s.UpdateObservation(ctx, input.ID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		if err := res.Err(input.ID); err != nil {
			return nil, handleError(err)
		}
		return reloadObservation(s, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-observation-status",
		Method:      http.MethodPut,
		Path:        "/observations/{id}/status",
		Summary:     "Set observation status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*observationOutput, error) {
		st, err := parseStatus(input.Body.Status)
		if err != nil {
			return nil, err
		}
		res, err := s.UpdateObservationStatus(ctx, input.ID, st)
		if err != nil {
			return nil, handleError(err)
		}
		if err := res.Err(input.ID); err != nil {
			return nil, handleError(err)
		}
		return reloadObservation(s, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-observation",
		Method:        http.MethodDelete,
		Path:          "/observations/{id}",
		Summary:       "Delete observation",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *observationPath) (*struct{}, error) {
		res, err := s.DeleteObservation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := res.Err(input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerAssignees(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assignees",
		Method:      http.MethodGet,
		Path:        "/assignees",
		Summary:     "List assignees in insertion order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		return &struct {
			Body []string `json:"body"`
		}{Body: s.Assignees()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-assignee",
		Method:        http.MethodPost,
		Path:          "/assignees",
		Summary:       "Add assignee",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body AddAssigneeRequest `json:"body"`
	}) (*struct {
		Body AssigneeResponse `json:"body"`
	}, error) {
		name, err := s.AddAssignee(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssigneeResponse `json:"body"`
		}{Body: AssigneeResponse{Name: name}}, nil
	})
}

func registerStats(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Dashboard counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: s.Stats()}, nil
	})
}

func registerTheme(api huma.API, th *theme.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "get-theme",
		Method:      http.MethodGet,
		Path:        "/theme",
		Summary:     "Current theme preference",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{DarkMode: th.Dark()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-theme",
		Method:      http.MethodPut,
		Path:        "/theme",
		Summary:     "Set theme preference",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ThemeRequest `json:"body"`
	}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		if err := th.Set(ctx, input.Body.DarkMode); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{DarkMode: th.Dark()}}, nil
	})
}

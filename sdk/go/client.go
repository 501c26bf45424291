package auditlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Auditline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Observation mirrors the API observation model.
type Observation struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	AssignedTo   string     `json:"assignedTo"`
	Evidence     *string    `json:"evidence"`
	EvidenceKind string     `json:"evidenceKind"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// CreateObservation is the body of a create call. Severity may be empty.
type CreateObservation struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Severity    *string `json:"severity,omitempty"`
	AssignedTo  string  `json:"assignedTo"`
	Evidence    *string `json:"evidence,omitempty"`
}

// ObservationPatch lists fields to change; nil fields are left alone.
type ObservationPatch struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Severity      *string `json:"severity,omitempty"`
	Status        *string `json:"status,omitempty"`
	AssignedTo    *string `json:"assignedTo,omitempty"`
	Evidence      *string `json:"evidence,omitempty"`
	ClearEvidence bool    `json:"clearEvidence,omitempty"`
}

// ListOptions filters ListObservations.
type ListOptions struct {
	Status     string
	Severity   string
	AssignedTo string
	Query      string
}

type StatusCount struct {
	Status  string  `json:"status"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

type Stats struct {
	Total      int             `json:"total"`
	ByStatus   []StatusCount   `json:"byStatus"`
	BySeverity []SeverityCount `json:"bySeverity"`
	Assignees  int             `json:"assignees"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) CreateObservation(ctx context.Context, in CreateObservation) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, "observations", in, &resp)
	return resp, err
}

func (c *Client) ListObservations(ctx context.Context, opts ListOptions) ([]Observation, error) {
	q := url.Values{}
	for k, v := range map[string]string{"status": opts.Status, "severity": opts.Severity, "assignedTo": opts.AssignedTo, "q": opts.Query} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "observations"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Observation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetObservation(ctx context.Context, id string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodGet, "observations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateObservation(ctx context.Context, id string, patch ObservationPatch) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPatch, "observations/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) SetStatus(ctx context.Context, id, status string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPut, "observations/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) DeleteObservation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "observations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Assignees(ctx context.Context) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "assignees", nil, &resp)
	return resp, err
}

// AddAssignee returns the trimmed name the server stored.
func (c *Client) AddAssignee(ctx context.Context, name string) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	err := c.do(ctx, http.MethodPost, "assignees", map[string]any{"name": name}, &resp)
	return resp.Name, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

func (c *Client) DarkMode(ctx context.Context) (bool, error) {
	var resp struct {
		DarkMode bool `json:"darkMode"`
	}
	err := c.do(ctx, http.MethodGet, "theme", nil, &resp)
	return resp.DarkMode, err
}

func (c *Client) SetDarkMode(ctx context.Context, dark bool) error {
	return c.do(ctx, http.MethodPut, "theme", map[string]any{"darkMode": dark}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}

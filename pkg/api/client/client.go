package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the stackgen API for the CLI.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	// Publishing clones and pushes synchronously, so allow for slow remotes.
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	// Body is the raw response, kept so callers can inspect partial results.
	Body []byte
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return APIError{Status: resp.StatusCode, Message: extractError(data), Body: data}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// File is a generated artifact.
type File struct {
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// GenerateInput is the body of POST /api/generate.
type GenerateInput struct {
	Type    string          `json:"type"`
	Owner   string          `json:"owner"`
	Repo    string          `json:"repo"`
	Token   string          `json:"token,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
	Commit  *bool           `json:"commit,omitempty"`
}

// GenerateResponse mirrors both the success and the publish failure body.
type GenerateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	File      *File  `json:"file"`
	GitHubURL string `json:"githubUrl"`
	Branch    string `json:"branch"`
	Output    string `json:"output"`
	HistoryID string `json:"historyId"`
}

// Generate renders an artifact and, unless input.Commit is false, publishes
// it. On a publish failure the decoded failure body is returned with the error.
func (c *Client) Generate(ctx context.Context, token string, input GenerateInput) (GenerateResponse, error) {
	var out GenerateResponse
	err := c.do(ctx, http.MethodPost, "/api/generate", input, token, &out)
	if apiErr, ok := err.(APIError); ok && len(apiErr.Body) > 0 {
		_ = json.Unmarshal(apiErr.Body, &out)
	}
	return out, err
}

// HistoryRecord reflects one history row.
type HistoryRecord struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Command   string `json:"command"`
	Output    string `json:"output"`
	Status    string `json:"status"`
	HasToken  bool   `json:"hasToken"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// HistoryQuery narrows ListHistory.
type HistoryQuery struct {
	Limit int
	Owner string
	Repo  string
}

// ListHistory fetches recent history, most recent first.
func (c *Client) ListHistory(ctx context.Context, query HistoryQuery) ([]HistoryRecord, error) {
	params := url.Values{}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Owner != "" {
		params.Set("owner", query.Owner)
	}
	if query.Repo != "" {
		params.Set("repo", query.Repo)
	}
	path := "/api/gitcommands"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []HistoryRecord
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory fetches one record.
func (c *Client) GetHistory(ctx context.Context, id string) (HistoryRecord, error) {
	var out HistoryRecord
	err := c.do(ctx, http.MethodGet, "/api/gitcommands/"+url.PathEscape(id), nil, "", &out)
	return out, err
}

// CreateHistoryInput is a manually recorded action.
type CreateHistoryInput struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Command  string `json:"command"`
	Output   string `json:"output,omitempty"`
	Status   string `json:"status,omitempty"`
}

// CreateHistory stores a manual record.
func (c *Client) CreateHistory(ctx context.Context, token string, input CreateHistoryInput) (HistoryRecord, error) {
	var out HistoryRecord
	err := c.do(ctx, http.MethodPost, "/api/gitcommands", input, token, &out)
	return out, err
}

// UpdateHistoryInput carries the fields to change; nil fields are kept.
type UpdateHistoryInput struct {
	Command *string `json:"command,omitempty"`
	Output  *string `json:"output,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// UpdateHistory modifies a record.
func (c *Client) UpdateHistory(ctx context.Context, token, id string, input UpdateHistoryInput) (HistoryRecord, error) {
	var out HistoryRecord
	err := c.do(ctx, http.MethodPut, "/api/gitcommands/"+url.PathEscape(id), input, token, &out)
	return out, err
}

// DeleteHistory removes a record.
func (c *Client) DeleteHistory(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/gitcommands/"+url.PathEscape(id), nil, token, nil)
}

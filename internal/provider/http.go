package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
)

// HTTPClient implements Client over the provider's JSON REST API.
type HTTPClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	callTimeout time.Duration
	log         logr.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithCallTimeout sets the per-call timeout applied to every request.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.callTimeout = d
	}
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(log logr.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.log = log
	}
}

// NewHTTPClient creates a provider client for the given API base URL.
func NewHTTPClient(baseURL, token string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		token:       token,
		httpClient:  http.DefaultClient,
		callTimeout: 30 * time.Second,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// createRequest is the provider create payload.
type createRequest struct {
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	Region string `json:"region"`
}

// createResponse is the provider create acknowledgement payload.
type createResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	State string `json:"state,omitempty"`
}

// clusterResponse is the provider get payload.
type clusterResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	State      string      `json:"state"`
	Message    string      `json:"message,omitempty"`
	Progress   int         `json:"progress,omitempty"`
	Connection *Connection `json:"connection,omitempty"`
}

// errorResponse is the provider error payload.
type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Create implements Client.
func (c *HTTPClient) Create(ctx context.Context, opts CreateOpts) (*CreateResult, error) {
	body := createRequest{Name: opts.Name, Tier: opts.Tier, Region: opts.Region}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/v1/clusters", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: create acknowledgement has no id", ErrMalformed)
	}
	return &CreateResult{ID: resp.ID, Name: resp.Name, State: resp.State}, nil
}

// Get implements Client.
func (c *HTTPClient) Get(ctx context.Context, name string) (*Cluster, error) {
	var resp clusterResponse
	if err := c.do(ctx, http.MethodGet, "/v1/clusters/"+url.PathEscape(name), nil, &resp); err != nil {
		return nil, err
	}
	if resp.State == "" {
		return nil, fmt.Errorf("%w: cluster %q has no state", ErrMalformed, name)
	}
	return &Cluster{
		ID:         resp.ID,
		Name:       resp.Name,
		State:      resp.State,
		Message:    resp.Message,
		Progress:   resp.Progress,
		Connection: resp.Connection,
	}, nil
}

// EnableBackups turns on scheduled backups for a provisioned cluster.
// Used as the post-ready side effect; not part of the lifecycle Client
// interface because its outcome never feeds back into the state machine.
func (c *HTTPClient) EnableBackups(ctx context.Context, name string) error {
	body := map[string]bool{"enabled": true}
	return c.do(ctx, http.MethodPost, "/v1/clusters/"+url.PathEscape(name)+"/backups", body, nil)
}

// Delete implements Client. A not-found response counts as success.
func (c *HTTPClient) Delete(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/clusters/"+url.PathEscape(name), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// do issues a single JSON request with the per-call timeout applied.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.log.V(1).Info("provider call", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start).Round(time.Millisecond))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w (status %d): %v", ErrMalformed, resp.StatusCode, err)
		}
	}
	return nil
}

// decodeError turns a non-2xx response into an APIError, preserving the
// provider's message verbatim so operators see the original cause.
func decodeError(status int, body []byte) error {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := payload.Message
		if msg == "" {
			msg = payload.Error
		}
		if msg != "" {
			return &APIError{Status: status, Code: payload.Code, Message: msg}
		}
	}
	return &APIError{Status: status, Message: string(bytes.TrimSpace(body))}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fleetdesk/fleetdesk/pkg/api"
	"github.com/fleetdesk/fleetdesk/pkg/httputil"
	"github.com/fleetdesk/fleetdesk/pkg/permissions"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

// DefaultTimeout covers the server-side resolution budget plus transport
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized is returned when the server rejects the token
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx reply from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fleetdesk API returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the fleetdesk HTTP API on behalf of one session token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for baseURL authenticating with token
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckTeamAccess implements teamaccess.Checker. The server resolves access
// for the token's user, so the user id argument is not sent. A 404 is
// returned as an error wrapping teamaccess.ErrTeamNotFound.
func (c *Client) CheckTeamAccess(ctx context.Context, _ string, teamID string) (*teamaccess.Result, error) {
	var result teamaccess.Result
	err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID)+"/access", nil, &result)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("team %s: %w", teamID, teamaccess.ErrTeamNotFound)
		}
		return nil, err
	}
	return &result, nil
}

// RepairTeamMembership asks the server to add the token's user to teamID
func (c *Client) RepairTeamMembership(ctx context.Context, teamID string) (teamaccess.RepairResult, error) {
	var result teamaccess.RepairResult
	err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/membership/repair", nil, &result)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return teamaccess.RepairResult{Error: apiErr.Message}, nil
	}
	return result, err
}

// HasPermission evaluates one permission for the token's user
func (c *Client) HasPermission(ctx context.Context, permission string, ec *permissions.EntityContext) (bool, error) {
	var resp api.CheckPermissionResponse
	err := c.do(ctx, http.MethodPost, "/permissions/check", api.CheckPermissionRequest{
		Permission: permission,
		Entity:     ec,
	}, &resp)
	return resp.Allowed, err
}

// BatchCheck evaluates several permissions for the token's user
func (c *Client) BatchCheck(ctx context.Context, perms []string, ec *permissions.EntityContext) (map[string]bool, error) {
	var resp api.BatchCheckResponse
	err := c.do(ctx, http.MethodPost, "/permissions/batch", api.BatchCheckRequest{
		Permissions: perms,
		Entity:      ec,
	}, &resp)
	return resp.Results, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+api.APIPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, errorMessage(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the "error" field of a JSON error body
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

var _ teamaccess.Checker = (*Client)(nil)

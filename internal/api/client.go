package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"codepilot/internal/models"
)

const (
	defaultHTTPTimeout  = 10 * time.Second
	defaultLongTimeout  = 20 * time.Minute
	httpTimeoutEnvKey   = "CODEPILOT_HTTP_TIMEOUT"
	applyTimeoutEnvKey  = "CODEPILOT_APPLY_HTTP_TIMEOUT"
	apiTokenEnvKey      = "CODEPILOT_API_TOKEN"
	textPlainMediaType  = "text/plain; charset=utf-8"
	applicationJSONType = "application/json"
)

// Client is a simple HTTP client for the codepilot API.
type Client struct {
	baseURL   string
	http      *http.Client
	long      *http.Client
	authToken string
}

// NewClient creates a new API client. Requests that drive the generator or
// git (from-message, apply-change) use a separate, longer timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeoutFromEnv(httpTimeoutEnvKey, defaultHTTPTimeout)},
		long:      &http.Client{Timeout: timeoutFromEnv(applyTimeoutEnvKey, defaultLongTimeout)},
		authToken: strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
	}
}

// WithToken returns a copy of c that sends token as bearer auth.
func (c *Client) WithToken(token string) *Client {
	out := *c
	out.authToken = strings.TrimSpace(token)
	return &out
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, c.http, http.MethodGet, "/health", url.Values{"shallow": {"true"}}, nil, nil)
}

// Health runs the server health checks. Shallow skips the remote probes.
func (c *Client) Health(ctx context.Context, shallow bool) (HealthResponse, error) {
	var resp HealthResponse
	var query url.Values
	if shallow {
		query = url.Values{"shallow": {"true"}}
	}
	err := c.do(ctx, c.long, http.MethodGet, "/health", query, nil, &resp)
	return resp, err
}

// CreateFromMessage turns a natural-language message into a stored task.
func (c *Client) CreateFromMessage(ctx context.Context, req FromMessageRequest) (models.Task, error) {
	var resp models.Task
	err := c.do(ctx, c.long, http.MethodPost, "/tasks/from-message", nil, req, &resp)
	return resp, err
}

// CreateFromText posts message as a text/plain body.
func (c *Client) CreateFromText(ctx context.Context, message string) (models.Task, error) {
	var resp models.Task
	err := c.send(ctx, c.long, http.MethodPost, "/tasks/from-message", nil, textPlainMediaType, strings.NewReader(message), &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context) (TaskListResponse, error) {
	var resp TaskListResponse
	err := c.do(ctx, c.http, http.MethodGet, "/tasks", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (models.Task, error) {
	var resp models.Task
	err := c.do(ctx, c.http, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// ApplyChange runs one apply attempt. A failed attempt returns an *APIError
// whose Details hold the attempt result.
func (c *Client) ApplyChange(ctx context.Context, id string) (ApplyResponse, error) {
	var resp ApplyResponse
	err := c.do(ctx, c.long, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/apply-change", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, body any, out any) error {
	if body == nil {
		return c.send(ctx, hc, method, path, query, "", nil, out)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.send(ctx, hc, method, path, query, applicationJSONType, bytes.NewReader(payload), out)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.setAuthHeader(req)

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
			Details:   errResp.Details,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func timeoutFromEnv(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return def
}

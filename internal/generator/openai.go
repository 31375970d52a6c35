package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codepilot/internal/models"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.2
	defaultHTTPTimeout = 2 * time.Minute
	maxErrorBody       = 4096
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// OpenAI generates specs and file content through a chat completions API.
type OpenAI struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
	logger      *slog.Logger
}

var (
	_ ContentGenerator = (*OpenAI)(nil)
	_ SpecGenerator    = (*OpenAI)(nil)
	_ Pinger           = (*OpenAI)(nil)
)

// NewOpenAI creates a client. Zero config fields fall back to defaults.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAI{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		http:        client,
		logger:      slog.Default().With("component", "generator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate returns the full updated content of req.Path.
func (c *OpenAI) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	reply, err := c.chat(ctx, "generate", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: contentSystemPrompt},
			{Role: "user", Content: contentPrompt(req)},
		},
	})
	if err != nil {
		return "", err
	}

	content := StripCodeFences(reply)
	if content == "" {
		return "", &Error{Op: "generate", Err: ErrEmptyResponse}
	}
	if strings.HasSuffix(req.Current, "\n") || !req.Exists {
		content += "\n"
	}
	return content, nil
}

// GenerateSpec turns a message into a task spec using JSON output mode.
func (c *OpenAI) GenerateSpec(ctx context.Context, req SpecRequest) (models.TaskSpec, error) {
	payload, err := specPrompt(req)
	if err != nil {
		return models.TaskSpec{}, &Error{Op: "spec", Err: err}
	}
	reply, err := c.chat(ctx, "spec", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: specSystemPrompt},
			{Role: "user", Content: payload},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return models.TaskSpec{}, err
	}

	var spec models.TaskSpec
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &spec); err != nil {
		return models.TaskSpec{}, &Error{Op: "spec", Err: fmt.Errorf("malformed spec: %w", err)}
	}
	return spec, nil
}

// Ping lists models to check reachability and credentials.
func (c *OpenAI) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Op: "ping", Retryable: true, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 400 {
		return &Error{Op: "ping", Retryable: retryableStatus(resp.StatusCode), Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return nil
}

func (c *OpenAI) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	req.Model = c.model
	req.Temperature = c.temperature

	payload, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthHeader(httpReq)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("chat completion", "op", op, "model", c.model, "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode >= 400 {
		return "", decodeError(op, resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", &Error{Op: op, Err: ErrEmptyResponse}
	}
	return out.Choices[0].Message.Content, nil
}

func decodeError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	if msg == "" {
		msg = resp.Status
	}
	return &Error{
		Op:        op,
		Retryable: retryableStatus(resp.StatusCode),
		Status:    resp.StatusCode,
		Err:       errors.New(msg),
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *OpenAI) setAuthHeader(req *http.Request) {
	if c.apiKey == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

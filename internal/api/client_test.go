package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codepilot/internal/models"
)

func TestTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := timeoutFromEnv(httpTimeoutEnvKey, defaultHTTPTimeout); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := timeoutFromEnv(httpTimeoutEnvKey, defaultHTTPTimeout); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(applyTimeoutEnvKey, "25")
		if got := timeoutFromEnv(applyTimeoutEnvKey, defaultLongTimeout); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := timeoutFromEnv(httpTimeoutEnvKey, defaultHTTPTimeout); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientSendsBearerToken(t *testing.T) {
	t.Setenv(apiTokenEnvKey, "secret")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":0,"items":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).ListTasks(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestClientCreateFromText(t *testing.T) {
	var contentType, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Task{ID: "abc", Title: "Fix"})
	}))
	defer srv.Close()

	task, err := NewClient(srv.URL).CreateFromText(context.Background(), "fix the bug")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "abc" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if contentType != textPlainMediaType || body != "fix the bug" {
		t.Fatalf("unexpected request: %q %q", contentType, body)
	}
}

func TestClientDecodesApplyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks/t1/apply-change" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Utilities.java matches 2 files","code":"ambiguous_path","error_code":2201,` +
			`"details":{"task_id":"t1","state":"failed","stage":"workspace_prepared","files":[` +
			`{"requested":"Utilities.java","candidates":["a/Utilities.java","b/Utilities.java"],"error_kind":"multiple_matches","changed":false}]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ApplyChange(context.Background(), "t1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "ambiguous_path" || apiErr.ErrorCode != 2201 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	result, ok := apiErr.ApplyResult()
	if !ok {
		t.Fatal("expected apply result in details")
	}
	if len(result.Files) != 1 || len(result.Files[0].Candidates) != 2 {
		t.Fatalf("unexpected details: %+v", result)
	}
}

func TestDecodeErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetTask(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if _, ok := apiErr.ApplyResult(); ok {
		t.Fatal("expected no apply result")
	}
}

package api

import (
	"encoding/json"
	"fmt"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
	Details   json.RawMessage
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// ApplyResult decodes the apply attempt carried in Details, if any.
func (e *APIError) ApplyResult() (ApplyResponse, bool) {
	var resp ApplyResponse
	if e == nil || len(e.Details) == 0 {
		return resp, false
	}
	if err := json.Unmarshal(e.Details, &resp); err != nil || resp.TaskID == "" {
		return ApplyResponse{}, false
	}
	return resp, true
}

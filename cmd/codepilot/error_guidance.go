package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"codepilot/internal/api"
	"codepilot/internal/server"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		lines = append(lines, applyFailureLines(apiErr)...)
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CODEPILOT_API_TOKEN matches the server token.")
		case "resource_exhausted":
			lines = append(lines, "hint: too many concurrent applies; retry shortly.")
		case "ambiguous_path":
			lines = append(lines, "hint: make the task's affected_files more specific, then create a new task.")
		case "branch_conflict":
			lines = append(lines, "hint: the task branch already exists on the remote with other commits; inspect or delete it.")
		case "bad_gateway":
			lines = append(lines, "hint: check the AI provider settings (ai.*) and target repository access.")
		case "timeout":
			lines = append(lines, "hint: raise apply.attempt_timeout or apply.generate_timeout.")
		}
		switch apiErr.ErrorCode {
		case server.ErrCodeTaskNotOpen:
			lines = append(lines, "hint: the task was already applied; see its applied_branch with: codepilot show <id>")
		case server.ErrCodeNoAffectedFiles:
			lines = append(lines, "hint: the task names no affected files; create it again with file paths in the message.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CODEPILOT_API_URL points to a codepilot server.")
		}
		if apiErr.Status >= 500 && apiErr.Status != 502 && apiErr.Status != 504 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CODEPILOT_HTTP_TIMEOUT (CODEPILOT_APPLY_HTTP_TIMEOUT for apply).")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a codepilot server is running at CODEPILOT_API_URL.",
			"hint: start local server manually with: codepilot srv",
			"hint: you can increase CODEPILOT_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

// applyFailureLines lists the unresolved file hints of a failed apply.
func applyFailureLines(apiErr *api.APIError) []string {
	res, ok := apiErr.ApplyResult()
	if !ok {
		return nil
	}
	var lines []string
	if res.Stage != "" {
		lines = append(lines, fmt.Sprintf("stopped after: %s", res.Stage))
	}
	for _, f := range res.Files {
		if f.ErrorKind == "" {
			continue
		}
		line := fmt.Sprintf("  %s: %s", f.Requested, f.ErrorKind)
		if len(f.Candidates) > 0 {
			line += " (candidates: " + strings.Join(f.Candidates, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

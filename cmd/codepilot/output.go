package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"codepilot/internal/api"
	"codepilot/internal/format"
	"codepilot/internal/models"
)

var stdout io.Writer = os.Stdout

// outputOptions holds the global --json and --yaml flags.
type outputOptions struct {
	json bool
	yaml bool
}

func (o *outputOptions) structured() bool {
	return o != nil && (o.json || o.yaml)
}

func (o *outputOptions) formatter() format.Formatter {
	if o != nil && o.yaml {
		return format.YAMLFormatter{}
	}
	return format.JSONFormatter{}
}

func (o *outputOptions) write(payload any) error {
	return o.formatter().Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeTaskList(tasks []models.TaskSummary) error {
	if len(tasks) == 0 {
		return writePlain("no tasks\n")
	}
	for _, task := range tasks {
		if err := writePlain("%s\n", formatTaskLine(task)); err != nil {
			return err
		}
	}
	return nil
}

func writeTaskDetail(task models.Task) error {
	lines := []string{
		fmt.Sprintf("id: %s", task.ID),
		fmt.Sprintf("title: %s", task.Title),
		fmt.Sprintf("status: %s", task.Status),
		fmt.Sprintf("type: %s", task.Type),
		fmt.Sprintf("priority: %s", task.Priority),
		fmt.Sprintf("created_at: %s", formatTime(task.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(task.UpdatedAt)),
	}

	if task.TargetRepo != "" {
		lines = append(lines, fmt.Sprintf("target_repo: %s", task.TargetRepo))
	}
	if task.AppliedBranch != "" {
		lines = append(lines, fmt.Sprintf("applied_branch: %s", task.AppliedBranch))
	}
	if task.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", task.Description))
	}
	lines = appendList(lines, "affected_files", task.AffectedFiles)
	lines = appendList(lines, "acceptance_criteria", task.AcceptanceCriteria)

	if len(task.RunHistory) > 0 {
		lines = append(lines, "runs:")
		for _, run := range task.RunHistory {
			lines = append(lines, "  - "+formatRunLine(run))
		}
	}

	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeApplyResult(res api.ApplyResponse) error {
	lines := []string{
		fmt.Sprintf("task: %s", res.TaskID),
		fmt.Sprintf("state: %s", res.State),
	}
	if res.Stage != "" && res.Stage != res.State {
		lines = append(lines, fmt.Sprintf("stage: %s", res.Stage))
	}
	if res.Branch != "" {
		lines = append(lines, fmt.Sprintf("branch: %s", res.Branch))
	}
	if res.Commit != "" {
		lines = append(lines, fmt.Sprintf("commit: %s", res.Commit))
	}
	for _, f := range res.Files {
		lines = append(lines, "  "+formatFileLine(f))
	}
	if res.Error != "" {
		lines = append(lines, fmt.Sprintf("error (%s): %s", res.ErrorKind, res.Error))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeHealth(resp api.HealthResponse) error {
	if err := writePlain("status: %s\n", resp.Status); err != nil {
		return err
	}
	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := resp.Checks[name]
		line := fmt.Sprintf("  %s: %s (%dms)", name, check.Status, check.LatencyMS)
		if check.Error != "" {
			line += " - " + check.Error
		}
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func appendList(lines []string, name string, values []string) []string {
	if len(values) == 0 {
		return lines
	}
	lines = append(lines, name+":")
	for _, v := range values {
		lines = append(lines, "  - "+v)
	}
	return lines
}

func formatTaskLine(task models.TaskSummary) string {
	marker := "○"
	if task.Status == models.StatusClosed {
		marker = "●"
	}
	return fmt.Sprintf("%s %s [%s] [%s] - %s", marker, task.ID, task.Priority, task.Type, task.Title)
}

func formatRunLine(run models.RunRecord) string {
	line := fmt.Sprintf("%s %s %s", formatTime(run.At), run.Outcome, run.Branch)
	if run.Commit != "" {
		line += " " + shortCommit(run.Commit)
	}
	if run.Error != "" {
		line += fmt.Sprintf(" (%s: %s)", run.ErrorKind, run.Error)
	}
	return line
}

func formatFileLine(f api.ApplyFileResponse) string {
	switch {
	case f.Resolved != "" && f.Resolved != f.Requested:
		return fmt.Sprintf("%s -> %s (%s)%s", f.Requested, f.Resolved, f.Method, changedSuffix(f.Changed))
	case f.Resolved != "":
		return fmt.Sprintf("%s (%s)%s", f.Requested, f.Method, changedSuffix(f.Changed))
	case len(f.Candidates) > 0:
		return fmt.Sprintf("%s: %s [%s]", f.Requested, f.ErrorKind, strings.Join(f.Candidates, ", "))
	case f.ErrorKind != "":
		return fmt.Sprintf("%s: %s", f.Requested, f.ErrorKind)
	default:
		return f.Requested
	}
}

func changedSuffix(changed bool) string {
	if changed {
		return " changed"
	}
	return ""
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

package models

import (
	"fmt"
	"strings"
)

// TaskSpec is the structured form of a natural-language change request.
type TaskSpec struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	AffectedFiles      []string `json:"affected_files"`
}

// NormalizeSpec fills defaults and validates enum fields. The message is used as
// the description when the spec has none.
func NormalizeSpec(spec TaskSpec, message string) (TaskSpec, error) {
	out := TaskSpec{
		Title:              strings.TrimSpace(spec.Title),
		Description:        strings.TrimSpace(spec.Description),
		AcceptanceCriteria: trimNonEmpty(spec.AcceptanceCriteria, false),
		AffectedFiles:      trimNonEmpty(spec.AffectedFiles, true),
	}
	if out.Title == "" {
		out.Title = DefaultTitle
	}
	if out.Description == "" {
		out.Description = strings.TrimSpace(message)
	}

	out.Type = string(DefaultType)
	if strings.TrimSpace(spec.Type) != "" {
		taskType, err := ParseTaskType(spec.Type)
		if err != nil {
			return TaskSpec{}, err
		}
		out.Type = string(taskType)
	}

	out.Priority = string(DefaultPriority)
	if strings.TrimSpace(spec.Priority) != "" {
		priority, err := ParsePriority(spec.Priority)
		if err != nil {
			return TaskSpec{}, err
		}
		out.Priority = string(priority)
	}

	if out.Title == DefaultTitle && out.Description == "" {
		return TaskSpec{}, fmt.Errorf("spec has neither title nor description")
	}
	return out, nil
}

func trimNonEmpty(values []string, dedupe bool) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if dedupe {
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
		}
		out = append(out, value)
	}
	return out
}

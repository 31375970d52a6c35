package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"codepilot/internal/api"
)

// requestFrontMatter is the YAML header of a change request file.
type requestFrontMatter struct {
	TargetRepo string `yaml:"target_repo"`
	// Message, when set, is prepended to the body.
	Message string `yaml:"message"`
}

// parseRequestMarkdown splits an optional front matter block from the body.
// The body becomes the change request message.
func parseRequestMarkdown(input string) (api.FromMessageRequest, error) {
	var req api.FromMessageRequest
	content := input

	lines := strings.Split(input, "\n")
	if len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				end = i
				break
			}
		}
		if end == -1 {
			return req, fmt.Errorf("front matter not closed")
		}
		var fm requestFrontMatter
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
			return req, err
		}
		req.TargetRepo = strings.TrimSpace(fm.TargetRepo)
		content = strings.Join(lines[end+1:], "\n")
		if msg := strings.TrimSpace(fm.Message); msg != "" {
			content = msg + "\n\n" + content
		}
	}

	req.Message = strings.TrimSpace(content)
	return req, nil
}

package generator

import (
	"context"
	"path"
	"regexp"
	"strings"

	"codepilot/internal/models"
)

// Static is a deterministic in-process generator for tests and offline runs.
// Content generation appends a note naming the task; spec generation derives
// fields from the message text.
type Static struct{}

var (
	_ ContentGenerator = Static{}
	_ SpecGenerator    = Static{}
	_ Pinger           = Static{}
)

var commentStyles = map[string][2]string{
	"python":   {"# ", ""},
	"ruby":     {"# ", ""},
	"bash":     {"# ", ""},
	"yaml":     {"# ", ""},
	"toml":     {"# ", ""},
	"sql":      {"-- ", ""},
	"markdown": {"<!-- ", " -->"},
	"html":     {"<!-- ", " -->"},
	"xml":      {"<!-- ", " -->"},
	"css":      {"/* ", " */"},
}

// pathLike matches tokens such as "Utilities.java" or "src/app/main.go".
var pathLike = regexp.MustCompile(`[A-Za-z0-9_./-]+\.[A-Za-z0-9]{1,8}`)

// Generate appends a note line to the current content.
func (Static) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "generate", Retryable: true, Err: err}
	}
	title := "change"
	if req.Task != nil && req.Task.Title != "" {
		title = req.Task.Title
	}

	style, ok := commentStyles[LanguageHint(req.Path)]
	if !ok {
		style = [2]string{"// ", ""}
	}
	note := style[0] + "codepilot: " + title + style[1]

	content := req.Current
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + note + "\n", nil
}

// GenerateSpec builds a spec from the message: the first line becomes the
// title and path-like tokens become affected files.
func (Static) GenerateSpec(ctx context.Context, req SpecRequest) (models.TaskSpec, error) {
	if err := ctx.Err(); err != nil {
		return models.TaskSpec{}, &Error{Op: "spec", Retryable: true, Err: err}
	}
	message := strings.TrimSpace(req.Message)
	title, _, _ := strings.Cut(message, "\n")
	title = strings.TrimSpace(title)
	if len(title) > 72 {
		title = strings.TrimSpace(title[:72])
	}

	files := []string{}
	for _, token := range pathLike.FindAllString(message, -1) {
		token = strings.TrimRight(token, ".")
		if path.Ext(token) == "" {
			continue
		}
		files = append(files, token)
	}

	return models.TaskSpec{
		Title:         title,
		Description:   message,
		Type:          string(guessType(message)),
		Priority:      string(models.DefaultPriority),
		AffectedFiles: files,
	}, nil
}

// Ping always succeeds.
func (Static) Ping(ctx context.Context) error {
	return nil
}

func guessType(message string) models.TaskType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug"):
		return models.TypeBugfix
	case strings.Contains(lower, "refactor") || strings.Contains(lower, "rename"):
		return models.TypeRefactor
	default:
		return models.DefaultType
	}
}

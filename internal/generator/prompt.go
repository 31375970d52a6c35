package generator

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"codepilot/internal/models"
)

// maxRepoFiles caps the file list sent with a spec request.
const maxRepoFiles = 3000

const contentSystemPrompt = "You are CodePilot, a coding assistant. " +
	"You receive a source file and a requested change, and you must return the FULL updated file content. " +
	"Do not explain. Do not add comments unless explicitly asked. " +
	"Just return the updated code."

const specSystemPrompt = "You are CodePilot, a planning assistant.\n" +
	"Convert the user's request into a task specification JSON object.\n" +
	"Rules:\n" +
	"1) 'affected_files' should name files from the repository file list when one is given.\n" +
	"2) 'type' is one of bugfix, feature, refactor. 'priority' is one of low, medium, high.\n" +
	"3) Output MUST be valid JSON only (no markdown, no commentary).\n"

var languageByExt = map[string]string{
	".go":    "go",
	".java":  "java",
	".kt":    "kotlin",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "jsx",
	".ts":    "typescript",
	".tsx":   "tsx",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".sh":    "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".swift": "swift",
}

// LanguageHint guesses a fence language tag from the file extension.
func LanguageHint(filePath string) string {
	return languageByExt[strings.ToLower(path.Ext(filePath))]
}

func contentPrompt(req GenerateRequest) string {
	lang := LanguageHint(req.Path)

	var b strings.Builder
	fmt.Fprintf(&b, "File path: %s\n", req.Path)
	fmt.Fprintf(&b, "Language: %s\n\n", lang)
	if req.Exists {
		b.WriteString("Current file content:\n")
	} else {
		b.WriteString("The file does not exist yet. Current file content is empty:\n")
	}
	fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, req.Current)
	b.WriteString("Change request:\n")
	b.WriteString(changeRequest(req.Task))
	b.WriteString("\n\nReturn ONLY the updated file content. Do NOT wrap it in ``` or any extra text.")
	return b.String()
}

func changeRequest(task *models.Task) string {
	if task == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(task.Title)
	if task.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(task.Description)
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:")
		for _, c := range task.AcceptanceCriteria {
			b.WriteString("\n- ")
			b.WriteString(c)
		}
	}
	return b.String()
}

type specPayload struct {
	UserRequest          string          `json:"user_request"`
	RepoFileList         []string        `json:"repo_file_list,omitempty"`
	RequiredOutputSchema models.TaskSpec `json:"required_output_schema"`
	Notes                string          `json:"notes"`
}

func specPrompt(req SpecRequest) (string, error) {
	files := req.RepoFiles
	if len(files) > maxRepoFiles {
		files = files[:maxRepoFiles]
	}
	payload := specPayload{
		UserRequest:  req.Message,
		RepoFileList: files,
		RequiredOutputSchema: models.TaskSpec{
			Title:              "Short task title",
			Description:        "Clear description of what to change",
			Type:               "bugfix | feature | refactor",
			Priority:           "low | medium | high",
			AcceptanceCriteria: []string{"Observable condition that shows the change is done"},
			AffectedFiles:      []string{"path/from/repo/root/File1.ext", "path/from/repo/root/File2.ext"},
		},
		Notes: "Choose 1-5 affected_files max. Prefer minimal changes.",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StripCodeFences removes a markdown fence wrapped around the whole reply.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

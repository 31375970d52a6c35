package git

import (
	"path"
	"strings"
)

// ExtractRepoName returns the repository name from a clone URL or local path,
// e.g. "git@github.com:acme/app.git" -> "app".
func ExtractRepoName(remote string) string {
	remote = strings.TrimSpace(remote)
	remote = strings.TrimRight(remote, "/")
	if remote == "" {
		return ""
	}
	name := path.Base(strings.ReplaceAll(remote, ":", "/"))
	name = strings.TrimSuffix(name, ".git")
	if name == "." || name == "/" {
		return ""
	}
	return name
}

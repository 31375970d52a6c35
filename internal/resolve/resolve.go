// Package resolve maps the file hints of a task onto concrete paths in a
// repository tree.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Method records how a path was resolved.
type Method string

const (
	MethodVerbatim Method = "verbatim"
	MethodSearch   Method = "search"
)

// vcsDirs are never searched and never resolved.
var vcsDirs = map[string]struct{}{
	".git":   {},
	".hg":    {},
	".svn":   {},
	".bzr":   {},
	"_darcs": {},
	"CVS":    {},
}

// Options tunes the tree search.
type Options struct {
	// Ignore holds doublestar patterns, relative to the root, that the search
	// skips (e.g. "**/node_modules/**").
	Ignore []string
}

// Resolution is a successfully resolved path.
type Resolution struct {
	Requested string `json:"requested"`
	Path      string `json:"path"`
	Method    Method `json:"method"`
}

// Resolve maps requested onto a regular file in fsys. An existing path is
// returned as is; otherwise the last segment is searched for across the tree.
func Resolve(fsys fs.FS, requested string, opts Options) (Resolution, error) {
	cleaned, reason := clean(requested)
	if reason != "" {
		return Resolution{}, &AmbiguityError{Requested: requested, Kind: NotFound, Candidates: []string{}, Reason: reason}
	}

	linked, err := throughSymlink(fsys, cleaned)
	if err != nil {
		return Resolution{}, err
	}
	if linked != "" {
		return Resolution{}, &AmbiguityError{Requested: requested, Kind: NotFound, Candidates: []string{}, Reason: "symbolic link at " + linked}
	}

	info, err := fs.Stat(fsys, cleaned)
	if err == nil && info.Mode().IsRegular() {
		return Resolution{Requested: requested, Path: cleaned, Method: MethodVerbatim}, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Resolution{}, fmt.Errorf("stat %s: %w", cleaned, err)
	}

	matches, err := search(fsys, path.Base(cleaned), opts)
	if err != nil {
		return Resolution{}, err
	}

	switch len(matches) {
	case 1:
		return Resolution{Requested: requested, Path: matches[0], Method: MethodSearch}, nil
	case 0:
		return Resolution{}, &AmbiguityError{Requested: requested, Kind: NotFound, Candidates: []string{}}
	default:
		return Resolution{}, &AmbiguityError{Requested: requested, Kind: MultipleMatches, Candidates: matches}
	}
}

// All resolves every requested path. Resolutions are returned in input order
// for the paths that resolved; ambiguity failures are collected into Failures.
func All(fsys fs.FS, requested []string, opts Options) ([]Resolution, error) {
	resolved := make([]Resolution, 0, len(requested))
	var failures Failures
	for _, req := range requested {
		res, err := Resolve(fsys, req, opts)
		if err != nil {
			var ambiguity *AmbiguityError
			if !errors.As(err, &ambiguity) {
				return nil, err
			}
			failures = append(failures, ambiguity)
			continue
		}
		resolved = append(resolved, res)
	}
	if len(failures) > 0 {
		return resolved, failures
	}
	return resolved, nil
}

// clean normalizes requested to a slash-separated path relative to the root.
// A non-empty reason means the path can never resolve.
func clean(requested string) (string, string) {
	p := strings.TrimSpace(strings.ReplaceAll(requested, `\`, "/"))
	if p == "" {
		return "", "empty path"
	}
	if strings.HasPrefix(p, "/") || (len(p) >= 2 && p[1] == ':') {
		return "", "outside repository"
	}
	p = path.Clean(p)
	if p == "." {
		return "", "empty path"
	}
	if !fs.ValidPath(p) {
		return "", "outside repository"
	}
	for _, seg := range strings.Split(p, "/") {
		if _, ok := vcsDirs[seg]; ok {
			return "", "inside version-control metadata"
		}
	}
	return p, ""
}

// LstatFS is a file system that can report a symbolic link without following
// it.
type LstatFS interface {
	fs.FS
	Lstat(name string) (fs.FileInfo, error)
}

// throughSymlink returns the first segment of p that is a symbolic link. File
// systems without Lstat are trusted as is.
func throughSymlink(fsys fs.FS, p string) (string, error) {
	lfs, ok := fsys.(LstatFS)
	if !ok {
		return "", nil
	}
	var prefix string
	for _, seg := range strings.Split(p, "/") {
		prefix = path.Join(prefix, seg)
		info, err := lfs.Lstat(prefix)
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("lstat %s: %w", prefix, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return prefix, nil
		}
	}
	return "", nil
}

// RootFS exposes root as an LstatFS.
func RootFS(root *os.Root) fs.FS {
	return rootFS{FS: root.FS(), root: root}
}

type rootFS struct {
	fs.FS
	root *os.Root
}

func (r rootFS) Lstat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: fs.ErrInvalid}
	}
	return r.root.Lstat(filepath.FromSlash(name))
}

func (r rootFS) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(r.FS, name)
}

func (r rootFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(r.FS, name)
}

func search(fsys fs.FS, name string, opts Options) ([]string, error) {
	matches := []string{}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if _, ok := vcsDirs[d.Name()]; ok {
				return fs.SkipDir
			}
			if ignored(p, opts.Ignore) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() != name || !d.Type().IsRegular() {
			return nil
		}
		if ignored(p, opts.Ignore) {
			return nil
		}
		matches = append(matches, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search for %s: %w", name, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func ignored(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

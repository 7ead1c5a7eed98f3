// Package request parses the free-form invocation grammar: a request string
// with an optional trailing -t<scope> marker.
package request

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// markerPattern matches a trailing test marker: "-t" alone or "-t<scope>".
var markerPattern = regexp.MustCompile(`(?:^|\s)-t([a-zA-Z0-9_-]*)\s*$`)

// Request is a parsed invocation.
type Request struct {
	Prompt    string // request text with the marker stripped
	Scope     string // scope token following -t; empty for a bare -t
	HasMarker bool
}

// Parse extracts the trailing -t marker from a prompt. Markers anywhere but
// the tail are left alone; "-tsmoke" yields scope "smoke", a bare "-t"
// yields an empty scope (workspace default).
func Parse(prompt string) Request {
	loc := markerPattern.FindStringSubmatchIndex(prompt)
	if loc == nil {
		return Request{Prompt: strings.TrimSpace(prompt)}
	}
	return Request{
		Prompt:    strings.TrimSpace(prompt[:loc[0]]),
		Scope:     prompt[loc[2]:loc[3]],
		HasMarker: true,
	}
}

// rootMarkers identify a project root besides .git.
var rootMarkers = []string{"package.json", "pyproject.toml", "setup.py", "Cargo.toml", "go.mod"}

// FindProjectRoot locates the project root for a working directory: the
// directory itself when it carries a marker, else the nearest ancestor with
// .git, else the directory unchanged.
func FindProjectRoot(cwd string) string {
	if hasDir(cwd, ".git") {
		return cwd
	}
	for _, marker := range rootMarkers {
		if _, err := os.Stat(filepath.Join(cwd, marker)); err == nil {
			return cwd
		}
	}
	for dir := filepath.Dir(cwd); ; dir = filepath.Dir(dir) {
		if hasDir(dir, ".git") {
			return dir
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return cwd
}

func hasDir(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.IsDir()
}

package workspace

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// ChangeLister reports paths (relative to the project root) with
// uncommitted changes. Injected so detection is testable without git.
type ChangeLister func(ctx context.Context, projectRoot string) ([]string, error)

// GitChangedFiles lists changed paths via git status --porcelain.
func GitChangedFiles(ctx context.Context, projectRoot string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = projectRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		// Porcelain format: two status columns, a space, then the path.
		// Renames carry "old -> new"; the new path is what matters.
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		path = strings.Trim(path, `"`)
		if path != "" {
			files = append(files, path)
		}
	}
	return files, nil
}

// Detect infers the target workspace from repository change state, falling
// back to the current directory. Changes spanning more than one workspace
// resolve to Undetected rather than guessing; a failing change listing is
// treated as "no changes", not an error.
func (r *Registry) Detect(ctx context.Context, projectRoot, cwd string, list ChangeLister) ID {
	if list != nil {
		if files, err := list(ctx, projectRoot); err == nil {
			if id := r.ownerOfAll(files); id != Undetected {
				return id
			}
			if r.spansMultiple(files) {
				// Ambiguous changes never silently pick a workspace.
				return Undetected
			}
		}
	}

	// Fall back to the working directory's position in the tree.
	rel, err := filepath.Rel(projectRoot, cwd)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Undetected
	}
	for _, w := range r.Workspaces {
		if underPrefix(filepath.ToSlash(rel), w.PathPrefix()) {
			return ID(w.Name)
		}
	}
	return Undetected
}

// ownerOfAll returns the single workspace owning every changed file that
// falls under any workspace, or Undetected when zero or several own them.
func (r *Registry) ownerOfAll(files []string) ID {
	owner := Undetected
	for _, f := range files {
		for _, w := range r.Workspaces {
			if !underPrefix(f, w.PathPrefix()) {
				continue
			}
			if owner != Undetected && owner != ID(w.Name) {
				return Undetected
			}
			owner = ID(w.Name)
		}
	}
	return owner
}

func (r *Registry) spansMultiple(files []string) bool {
	seen := map[ID]bool{}
	for _, f := range files {
		for _, w := range r.Workspaces {
			if underPrefix(f, w.PathPrefix()) {
				seen[ID(w.Name)] = true
			}
		}
	}
	return len(seen) > 1
}

// underPrefix is segment-aware: "smartscreen" matches "smartscreen/x" and
// "smartscreen" itself, but not "smartscreen-extras/x".
func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

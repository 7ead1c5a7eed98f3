// Package report finds the artifacts a finished test run left behind.
package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wingspanai/qarun/internal/workspace"
)

// Marker is the relative path inside a session report directory whose
// presence marks a completed report.
const Marker = "html-report/index.html"

// Locate searches the conventional report tree for completed reports tagged
// with the session id. The search is bounded: one session-keyed directory
// level under each workspace's report base, never deeper, so a report from
// another session cannot match. An empty result is a valid outcome (mobile
// runs and failed runs produce none).
//
// With an undetected workspace every browser workspace's tree is searched.
func Locate(projectRoot string, reg *workspace.Registry, id workspace.ID, sessionID string) []string {
	var paths []string
	for _, ws := range candidates(reg, id) {
		base := filepath.Join(projectRoot, ws.ReportBase())
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.Contains(entry.Name(), sessionID) {
				continue
			}
			marker := filepath.Join(base, entry.Name(), filepath.FromSlash(Marker))
			if info, err := os.Stat(marker); err == nil && !info.IsDir() {
				paths = append(paths, marker)
			}
		}
	}
	return paths
}

func candidates(reg *workspace.Registry, id workspace.ID) []workspace.Workspace {
	if ws, ok := reg.Lookup(id); ok {
		return []workspace.Workspace{ws}
	}
	var out []workspace.Workspace
	for _, ws := range reg.Workspaces {
		if ws.Family == workspace.FamilyBrowser {
			out = append(out, ws)
		}
	}
	return out
}

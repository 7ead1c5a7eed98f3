package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingspanai/qarun/internal/workspace"
)

func writeReport(t *testing.T, root, ws, sessionDir string, withMarker bool) string {
	t.Helper()
	dir := filepath.Join(root, ws, "test-reports", sessionDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if !withMarker {
		return ""
	}
	marker := filepath.Join(dir, "html-report", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(marker), 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("<html></html>"), 0o644))
	return marker
}

func TestLocate_FindsSessionKeyedReport(t *testing.T) {
	root := t.TempDir()
	reg := workspace.Default()
	want := writeReport(t, root, "wingspanai-web", "report-sess1", true)
	writeReport(t, root, "wingspanai-web", "report-other", true)

	paths := Locate(root, reg, workspace.ID("wingspanai-web"), "sess1")
	assert.Equal(t, []string{want}, paths)
}

func TestLocate_NoMarkerIsNotFound(t *testing.T) {
	root := t.TempDir()
	reg := workspace.Default()
	writeReport(t, root, "wingspanai-web", "report-sess1", false)

	paths := Locate(root, reg, workspace.ID("wingspanai-web"), "sess1")
	assert.Empty(t, paths)
}

func TestLocate_MissingTreeIsNotFound(t *testing.T) {
	paths := Locate(t.TempDir(), workspace.Default(), workspace.ID("smartscreen"), "sess1")
	assert.Empty(t, paths)
}

func TestLocate_UndetectedSearchesBrowserWorkspaces(t *testing.T) {
	root := t.TempDir()
	reg := workspace.Default()
	web := writeReport(t, root, "wingspanai-web", "sess1", true)
	smart := writeReport(t, root, "smartscreen", "sess1-run", true)
	// Mobile reports are never expected, even if something left one behind.
	writeReport(t, root, "wingspanai-mobile", "sess1", true)

	paths := Locate(root, reg, workspace.Undetected, "sess1")
	assert.ElementsMatch(t, []string{web, smart}, paths)
}

func TestLocate_DoesNotMatchDeeperLevels(t *testing.T) {
	root := t.TempDir()
	reg := workspace.Default()
	// Marker nested one level too deep under a non-session directory.
	deep := filepath.Join(root, "smartscreen", "test-reports", "archive", "sess1", "html-report")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "index.html"), []byte("x"), 0o644))

	paths := Locate(root, reg, workspace.ID("smartscreen"), "sess1")
	assert.Empty(t, paths)
}

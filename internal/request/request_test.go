package request

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TrailingMarker(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
		want   Request
	}{
		{
			name:   "scoped marker",
			prompt: "fix the login flow -tsmoke",
			want:   Request{Prompt: "fix the login flow", Scope: "smoke", HasMarker: true},
		},
		{
			name:   "bare marker",
			prompt: "run the tests -t",
			want:   Request{Prompt: "run the tests", HasMarker: true},
		},
		{
			name:   "marker with trailing space",
			prompt: "check checkout -tregression  ",
			want:   Request{Prompt: "check checkout", Scope: "regression", HasMarker: true},
		},
		{
			name:   "no marker",
			prompt: "just a normal request",
			want:   Request{Prompt: "just a normal request"},
		},
		{
			name:   "marker in the middle is not a marker",
			prompt: "the -tsmoke flag is documented here",
			want:   Request{Prompt: "the -tsmoke flag is documented here"},
		},
		{
			name:   "only a marker",
			prompt: "-tquick",
			want:   Request{Scope: "quick", HasMarker: true},
		},
		{
			name:   "empty prompt",
			prompt: "",
			want:   Request{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.prompt))
		})
	}
}

func TestFindProjectRoot_MarkerInCwd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))

	assert.Equal(t, dir, FindProjectRoot(dir))
}

func TestFindProjectRoot_GitAncestor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "smartscreen", "src")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))
}

func TestFindProjectRoot_NoMarkers(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, FindProjectRoot(dir))
}

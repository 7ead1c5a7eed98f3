package prereq

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wingspanai/qarun/internal/scope"
	"github.com/wingspanai/qarun/internal/workspace"
)

// fakeExec scripts command outcomes and records what ran.
type fakeExec struct {
	results map[string]fakeResult // keyed by "name arg arg..."
	calls   []string
	// onCall mutates state mid-run (e.g. bootstrap creating node_modules)
	onCall map[string]func()
}

type fakeResult struct {
	code int
	out  string
}

func (f *fakeExec) run(ctx context.Context, dir, name string, args ...string) (int, string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	if fn, ok := f.onCall[key]; ok {
		fn()
	}
	if res, ok := f.results[key]; ok {
		return res.code, res.out, nil
	}
	return 0, "", nil
}

func fixtureRoot(t *testing.T, withNodeModules bool, envContent string) string {
	t.Helper()
	root := t.TempDir()
	if withNodeModules {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	}
	if envContent != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(envContent), 0o600))
	}
	return root
}

const goodEnv = "BASE_URL=https://qa.example.com\nLOGIN_EMAIL=qa@example.com\nPASSWORD=hunter2\n"

func noEnv(string) string { return "" }

func browserSpec() scope.CommandSpec {
	return scope.CommandSpec{Family: workspace.FamilyBrowser}
}

func mobileSpec() scope.CommandSpec {
	return scope.CommandSpec{Family: workspace.FamilyMobile}
}

func TestValidate_AllSatisfied(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	fake := &fakeExec{}
	v := New(root, zap.NewNop()).WithExec(fake.run).WithEnv(noEnv)

	res, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.NoError(t, err)

	// Only the synthesized report iteration counts as a remediation.
	assert.Equal(t, []string{"synthesized REPORT_ITERATION=sess1"}, res.Remediations)
	assert.Equal(t, "sess1", res.ExtraEnv[ReportIterationVar])
	assert.Contains(t, fake.calls, "npx playwright install --dry-run")
}

func TestValidate_BootstrapRemediation(t *testing.T) {
	root := fixtureRoot(t, false, goodEnv)
	fake := &fakeExec{
		onCall: map[string]func(){
			"npm run bootstrap": func() {
				require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
			},
		},
	}
	v := New(root, zap.NewNop()).WithExec(fake.run).WithEnv(noEnv)

	res, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.NoError(t, err)

	assert.Contains(t, res.Remediations, "npm run bootstrap")
	found := false
	for _, c := range res.Checks {
		if c.Name == "dependencies" {
			assert.Equal(t, StatusRemediated, c.Status)
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_BootstrapStillMissingIsFatal(t *testing.T) {
	root := fixtureRoot(t, false, goodEnv)
	fake := &fakeExec{} // bootstrap "succeeds" but creates nothing
	v := New(root, zap.NewNop()).WithExec(fake.run).WithEnv(noEnv)

	_, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "dependencies", perr.Check)
	assert.Contains(t, err.Error(), "npm run bootstrap")
}

func TestValidate_BrowserInstallRemediation(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	installed := false
	fake := &fakeExec{results: map[string]fakeResult{}}
	fake.onCall = map[string]func(){
		"npx playwright install": func() {
			installed = true
			delete(fake.results, "npx playwright install --dry-run")
		},
	}
	fake.results["npx playwright install --dry-run"] = fakeResult{code: 0, out: "chromium needs to be installed"}

	v := New(root, zap.NewNop()).WithExec(fake.run).WithEnv(noEnv)
	res, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.NoError(t, err)

	assert.True(t, installed)
	assert.Contains(t, res.Remediations, "npx playwright install")
}

func TestValidate_SkipsBrowserCheckForMobile(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	fake := &fakeExec{}
	v := New(root, zap.NewNop()).WithExec(fake.run).WithEnv(noEnv)

	_, err := v.Validate(context.Background(), mobileSpec(), "sess1")
	require.NoError(t, err)

	for _, call := range fake.calls {
		assert.NotContains(t, call, "playwright")
	}
}

func TestValidate_MissingEnvFileIsFatal(t *testing.T) {
	root := fixtureRoot(t, true, "")
	v := New(root, zap.NewNop()).WithExec((&fakeExec{}).run).WithEnv(noEnv)

	_, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "env-config", perr.Check)
	assert.Contains(t, err.Error(), ".env not found")
}

func TestValidate_MissingVariablesAreNamed(t *testing.T) {
	root := fixtureRoot(t, true, "BASE_URL=https://qa.example.com\n")
	v := New(root, zap.NewNop()).WithExec((&fakeExec{}).run).WithEnv(noEnv)

	_, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "LOGIN_EMAIL")
	assert.Contains(t, err.Error(), "PASSWORD")
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestValidate_ReportIterationInherited(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	getenv := func(name string) string {
		if name == ReportIterationVar {
			return "caller-set"
		}
		return ""
	}
	v := New(root, zap.NewNop()).WithExec((&fakeExec{}).run).WithEnv(getenv)

	res, err := v.Validate(context.Background(), browserSpec(), "sess1")
	require.NoError(t, err)

	assert.Equal(t, "caller-set", res.ExtraEnv[ReportIterationVar])
	assert.Empty(t, res.Remediations)
}

func TestValidate_MobileAppPathFallback(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	v := New(root, zap.NewNop()).WithExec((&fakeExec{}).run).WithEnv(noEnv)

	res, err := v.Validate(context.Background(), mobileSpec(), "sess1")
	require.NoError(t, err)

	fallback := filepath.Join(root, "apps")
	assert.Equal(t, fallback, res.ExtraEnv[AndroidAppPathVar])
	assert.Equal(t, fallback, res.ExtraEnv[IOSAppPathVar])
}

func TestValidate_MobileAppPathConfigured(t *testing.T) {
	root := fixtureRoot(t, true, goodEnv)
	getenv := func(name string) string {
		if name == AndroidAppPathVar {
			return "/builds/app.apk"
		}
		return ""
	}
	v := New(root, zap.NewNop()).WithExec((&fakeExec{}).run).WithEnv(getenv)

	res, err := v.Validate(context.Background(), mobileSpec(), "sess1")
	require.NoError(t, err)

	_, ok := res.ExtraEnv[AndroidAppPathVar]
	assert.False(t, ok, "configured paths must pass through untouched")
}

func TestHasAssignment(t *testing.T) {
	content := "# comment\nexport BASE_URL=x\nPASSWORD=secret\n"
	assert.True(t, hasAssignment(content, "BASE_URL"))
	assert.True(t, hasAssignment(content, "PASSWORD"))
	assert.False(t, hasAssignment(content, "LOGIN_EMAIL"))
	assert.False(t, hasAssignment("NOT_PASSWORD=x", "PASSWORD"))
}

package execute

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/wingspanai/qarun/internal/scope"
	"github.com/wingspanai/qarun/internal/workspace"
)

// RetryPolicy shapes the single permitted retry for a runner family.
// Both strategies are policy-equivalent: one retry of failed work, never more.
type RetryPolicy interface {
	Name() string
	// Retry returns the invocation for attempt 2 after a failed attempt 1.
	Retry(spec scope.CommandSpec) scope.Invocation
}

func policyFor(family workspace.Family) RetryPolicy {
	if family == workspace.FamilyMobile {
		return &reinvokeRetry{}
	}
	return &delegatedRetry{}
}

// delegatedRetry re-invokes a browser-family command with the runner's own
// retry count, so the runner retries failed tests internally.
type delegatedRetry struct{}

func (*delegatedRetry) Name() string { return "delegated" }

func (*delegatedRetry) Retry(spec scope.CommandSpec) scope.Invocation {
	inv := spec.Run
	args := slices.Clone(inv.Args)
	if inv.Name == "npm" && !slices.Contains(args, "--") {
		args = append(args, "--")
	}
	if !slices.Contains(args, "--retries=1") {
		args = append(args, "--retries=1")
	}
	return scope.Invocation{Name: inv.Name, Args: args}
}

// RerunManifest is the conventional script the mobile runner's rerun service
// leaves behind, listing only the failed specs.
const RerunManifest = ".wdio-rerun/rerun.sh"

// reinvokeRetry re-invokes a mobile-family command. When the runner left a
// rerun manifest on disk the retry executes only that failed subset;
// otherwise the full command runs again. Presence is the only signal read.
type reinvokeRetry struct{}

func (*reinvokeRetry) Name() string { return "reinvoke" }

func (*reinvokeRetry) Retry(spec scope.CommandSpec) scope.Invocation {
	manifest := filepath.Join(spec.Dir, RerunManifest)
	if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
		return scope.Invocation{Name: "sh", Args: []string{RerunManifest}}
	}
	return spec.Run
}

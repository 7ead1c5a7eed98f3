package scope

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wingspanai/qarun/internal/workspace"
)

// Known scope tokens. "all" is a meta-scope that fans out to every
// workspace's default command.
const (
	Smoke      = "smoke"
	Critical   = "critical"
	Regression = "regression"
	Quick      = "quick"
	All        = "all"
)

// Known returns the valid scope tokens in display order.
func Known() []string {
	return []string{Smoke, Critical, Regression, Quick, All}
}

// Normalize case-folds and trims a raw scope token.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// UnknownScopeError reports a scope token outside the known set.
type UnknownScopeError struct {
	Token string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown scope %q (valid scopes: %s)", e.Token, strings.Join(Known(), ", "))
}

// Invocation is a single external command: name plus arguments.
type Invocation struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Name
	}
	return i.Name + " " + strings.Join(i.Args, " ")
}

// CommandSpec is the fully resolved, ready-to-execute test invocation.
// It is produced once per run and never mutated afterwards.
type CommandSpec struct {
	Workspace workspace.ID
	Family    workspace.Family
	Scope     string      // normalized scope token, empty for workspace defaults
	Clean     *Invocation // optional best-effort pre-step
	Run       Invocation
	Filter    string // tag filter expression, e.g. "@regression"
	Dir       string // working directory
}

// Plan resolves (workspace, scope) to the ordered list of CommandSpecs for
// one orchestrator invocation. Every scope except "all" yields exactly one
// spec; "all" yields one per known workspace. Resolution is pure: identical
// inputs always produce identical plans.
func Plan(reg *workspace.Registry, id workspace.ID, token, projectRoot string) ([]CommandSpec, error) {
	token = Normalize(token)

	switch token {
	case "":
		if ws, ok := reg.Lookup(id); ok {
			return []CommandSpec{defaultFor(ws, projectRoot)}, nil
		}
		// No scope and no workspace: conservative smoke fallback.
		return []CommandSpec{scoped(Smoke, id, projectRoot)}, nil

	case All:
		specs := make([]CommandSpec, 0, len(reg.Workspaces))
		for _, ws := range reg.Workspaces {
			specs = append(specs, defaultFor(ws, projectRoot))
		}
		return specs, nil

	case Smoke, Critical, Regression, Quick:
		// Scope takes precedence over workspace.
		return []CommandSpec{scoped(token, id, projectRoot)}, nil

	default:
		return nil, &UnknownScopeError{Token: token}
	}
}

// scoped maps a named scope to its fixed npm script plus tag filter.
func scoped(token string, id workspace.ID, projectRoot string) CommandSpec {
	filter := "@" + token
	return CommandSpec{
		Workspace: id,
		Family:    workspace.FamilyBrowser,
		Scope:     token,
		Run: Invocation{
			Name: "npm",
			Args: []string{"run", "test:" + token, "--", "--grep", filter},
		},
		Filter: filter,
		Dir:    projectRoot,
	}
}

// defaultFor maps a workspace to its default command: a report-cleaning step
// followed by the workspace-appropriate runner.
func defaultFor(ws workspace.Workspace, projectRoot string) CommandSpec {
	if ws.Family == workspace.FamilyMobile {
		return CommandSpec{
			Workspace: workspace.ID(ws.Name),
			Family:    workspace.FamilyMobile,
			Run: Invocation{
				Name: "npx",
				Args: []string{"wdio", "run", "appium.config.ts"},
			},
			Dir: filepath.Join(projectRoot, ws.PathPrefix()),
		}
	}
	return CommandSpec{
		Workspace: workspace.ID(ws.Name),
		Family:    workspace.FamilyBrowser,
		Clean: &Invocation{
			Name: "npm",
			Args: []string{"--workspace=" + ws.Name, "run", "clean:reports"},
		},
		Run: Invocation{
			Name: "npm",
			Args: []string{"--workspace=" + ws.Name, "run", "test"},
		},
		Dir: projectRoot,
	}
}

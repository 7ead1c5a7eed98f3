package prereq

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wingspanai/qarun/internal/scope"
	"github.com/wingspanai/qarun/internal/workspace"
)

// Required .env variables. Values are secrets and must never be logged.
var RequiredEnvVars = []string{"BASE_URL", "LOGIN_EMAIL", "PASSWORD"}

// ReportIterationVar scopes report output per session.
const ReportIterationVar = "REPORT_ITERATION"

// Mobile app path variables, optional with a conventional fallback.
const (
	AndroidAppPathVar = "ANDROID_APP_PATH"
	IOSAppPathVar     = "IOS_APP_PATH"
)

// Status of a single prerequisite check.
type Status string

const (
	StatusSatisfied  Status = "satisfied"
	StatusRemediated Status = "remediated"
	StatusFatal      Status = "fatal"
)

// Check records the outcome of one named prerequisite check.
type Check struct {
	Name        string `json:"name"`
	Status      Status `json:"status"`
	Detail      string `json:"detail,omitempty"`
	Remediation string `json:"remediation,omitempty"` // action taken or suggested
}

// Error is a fatal prerequisite failure. It names the failed check and,
// where one exists, the remediation the user can run.
type Error struct {
	Check       string
	Detail      string
	Remediation string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("prerequisite %s: %s", e.Check, e.Detail)
	if e.Remediation != "" {
		msg += " (try: " + e.Remediation + ")"
	}
	return msg
}

// Result is the outcome of a full validation pass.
type Result struct {
	Checks       []Check           `json:"checks"`
	Remediations []string          `json:"remediations,omitempty"` // actions actually executed, for audit
	ExtraEnv     map[string]string `json:"-"`                      // injected into the test subprocess
}

// RunCommand executes a remediation or probe command and reports its exit
// code and combined output. Injected so tests never spawn npm.
type RunCommand func(ctx context.Context, dir, name string, args ...string) (int, string, error)

func execCommand(ctx context.Context, dir, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), string(out), nil
		}
		return -1, string(out), err
	}
	return 0, string(out), nil
}

// Validator runs the ordered prerequisite checks for a resolved command.
type Validator struct {
	projectRoot string
	log         *zap.Logger
	getenv      func(string) string
	run         RunCommand
}

func New(projectRoot string, log *zap.Logger) *Validator {
	return &Validator{
		projectRoot: projectRoot,
		log:         log,
		getenv:      os.Getenv,
		run:         execCommand,
	}
}

// WithExec replaces the command runner (tests).
func (v *Validator) WithExec(run RunCommand) *Validator {
	v.run = run
	return v
}

// WithEnv replaces environment lookup (tests).
func (v *Validator) WithEnv(getenv func(string) string) *Validator {
	v.getenv = getenv
	return v
}

// Validate runs every check in order. Fixable failures trigger one
// remediation and one re-check; fatal failures short-circuit with *Error.
// On success the Result carries the audit trail and the environment values
// to inject into the test subprocess, including the session-scoping
// REPORT_ITERATION (synthesized from sessionID when absent).
func (v *Validator) Validate(ctx context.Context, spec scope.CommandSpec, sessionID string) (*Result, error) {
	res := &Result{ExtraEnv: map[string]string{}}

	if err := v.checkDependencies(ctx, res); err != nil {
		return res, err
	}
	if spec.Family == workspace.FamilyBrowser {
		if err := v.checkBrowsers(ctx, res); err != nil {
			return res, err
		}
	}
	if err := v.checkEnvFile(res); err != nil {
		return res, err
	}
	v.checkReportIteration(res, sessionID)
	if spec.Family == workspace.FamilyMobile {
		v.checkMobileAppPaths(res)
	}
	return res, nil
}

// checkDependencies verifies the monorepo install state, bootstrapping once
// when node_modules is absent.
func (v *Validator) checkDependencies(ctx context.Context, res *Result) error {
	const name = "dependencies"
	remedy := "npm run bootstrap"

	if v.dirExists("node_modules") {
		res.Checks = append(res.Checks, Check{Name: name, Status: StatusSatisfied})
		return nil
	}

	v.log.Info("node_modules missing, bootstrapping install")
	res.Remediations = append(res.Remediations, remedy)
	code, out, err := v.run(ctx, v.projectRoot, "npm", "run", "bootstrap")
	if err != nil || code != 0 {
		return v.fatal(res, name, fmt.Sprintf("bootstrap install failed: %s", tail(out, err)), remedy)
	}
	if !v.dirExists("node_modules") {
		return v.fatal(res, name, "node_modules still missing after bootstrap", remedy)
	}
	res.Checks = append(res.Checks, Check{Name: name, Status: StatusRemediated, Remediation: remedy})
	return nil
}

// checkBrowsers probes the Playwright browser install, installing once if
// the probe reports missing browsers.
func (v *Validator) checkBrowsers(ctx context.Context, res *Result) error {
	const name = "browsers"
	remedy := "npx playwright install"

	if v.browsersPresent(ctx) {
		res.Checks = append(res.Checks, Check{Name: name, Status: StatusSatisfied})
		return nil
	}

	v.log.Info("playwright browsers missing, installing")
	res.Remediations = append(res.Remediations, remedy)
	code, out, err := v.run(ctx, v.projectRoot, "npx", "playwright", "install")
	if err != nil || code != 0 {
		return v.fatal(res, name, fmt.Sprintf("browser install failed: %s", tail(out, err)), remedy)
	}
	if !v.browsersPresent(ctx) {
		return v.fatal(res, name, "browsers still missing after install", remedy)
	}
	res.Checks = append(res.Checks, Check{Name: name, Status: StatusRemediated, Remediation: remedy})
	return nil
}

func (v *Validator) browsersPresent(ctx context.Context) bool {
	code, out, err := v.run(ctx, v.projectRoot, "npx", "playwright", "install", "--dry-run")
	if err != nil || code != 0 {
		return false
	}
	return !strings.Contains(out, "needs to be installed")
}

// checkEnvFile requires .env at the project root with every required
// variable assigned. No auto-remediation: these are user-supplied secrets.
func (v *Validator) checkEnvFile(res *Result) error {
	const name = "env-config"

	path := filepath.Join(v.projectRoot, ".env")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return v.fatal(res, name, ".env not found at project root", "create .env with "+strings.Join(RequiredEnvVars, ", "))
	}
	if err != nil {
		return v.fatal(res, name, "reading .env: "+err.Error(), "")
	}

	missing := missingAssignments(string(data), RequiredEnvVars)
	if len(missing) > 0 {
		return v.fatal(res, name,
			"missing required variables: "+strings.Join(missing, ", "),
			"add them to .env")
	}
	res.Checks = append(res.Checks, Check{Name: name, Status: StatusSatisfied})
	return nil
}

// checkReportIteration resolves the session-scoping variable: reuse the
// caller's value when set, otherwise synthesize the session id. Always
// fixable, never fatal. The value goes to the subprocess environment only;
// the orchestrator's own environment is left untouched.
func (v *Validator) checkReportIteration(res *Result, sessionID string) {
	if val := v.getenv(ReportIterationVar); val != "" {
		res.ExtraEnv[ReportIterationVar] = val
		res.Checks = append(res.Checks, Check{Name: "report-iteration", Status: StatusSatisfied})
		return
	}
	res.ExtraEnv[ReportIterationVar] = sessionID
	res.Remediations = append(res.Remediations, "synthesized "+ReportIterationVar+"="+sessionID)
	res.Checks = append(res.Checks, Check{
		Name:        "report-iteration",
		Status:      StatusRemediated,
		Remediation: "synthesized " + sessionID,
	})
	v.log.Info("synthesized report iteration", zap.String("value", sessionID))
}

// checkMobileAppPaths falls back to the conventional apps/ directory when
// neither app path variable is set. Never fatal.
func (v *Validator) checkMobileAppPaths(res *Result) {
	const name = "mobile-app-paths"

	android := v.getenv(AndroidAppPathVar)
	ios := v.getenv(IOSAppPathVar)
	if android != "" || ios != "" {
		res.Checks = append(res.Checks, Check{Name: name, Status: StatusSatisfied})
		return
	}

	fallback := filepath.Join(v.projectRoot, "apps")
	if !v.dirExists("apps") {
		v.log.Warn("no mobile app paths configured and no apps directory present",
			zap.String("fallback", fallback))
	}
	res.ExtraEnv[AndroidAppPathVar] = fallback
	res.ExtraEnv[IOSAppPathVar] = fallback
	res.Checks = append(res.Checks, Check{
		Name:        name,
		Status:      StatusRemediated,
		Remediation: "defaulted to " + fallback,
	})
}

func (v *Validator) fatal(res *Result, name, detail, remediation string) error {
	res.Checks = append(res.Checks, Check{Name: name, Status: StatusFatal, Detail: detail, Remediation: remediation})
	v.log.Error("prerequisite check failed", zap.String("check", name), zap.String("detail", detail))
	return &Error{Check: name, Detail: detail, Remediation: remediation}
}

func (v *Validator) dirExists(rel string) bool {
	info, err := os.Stat(filepath.Join(v.projectRoot, rel))
	return err == nil && info.IsDir()
}

// missingAssignments reports which of the wanted variables have no
// assignment line in the env file content. Only names are inspected;
// values are never returned.
func missingAssignments(content string, wanted []string) []string {
	var missing []string
	for _, name := range wanted {
		if !hasAssignment(content, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func hasAssignment(content, name string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "export ")
		if strings.HasPrefix(line, name+"=") {
			return true
		}
	}
	return false
}

func tail(out string, err error) string {
	if err != nil {
		return err.Error()
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " / ")
}

// Package orchestrator composes workspace detection, scope resolution,
// prerequisite validation, execution, and report discovery into one run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wingspanai/qarun/internal/execute"
	"github.com/wingspanai/qarun/internal/prereq"
	"github.com/wingspanai/qarun/internal/report"
	"github.com/wingspanai/qarun/internal/scope"
	"github.com/wingspanai/qarun/internal/workspace"
)

// NewSessionID returns a fresh session identifier: the original
// timestamp-keyed format plus a unique suffix, so sequential runs inside one
// second (scope "all") never share a report namespace.
func NewSessionID() string {
	return time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// Orchestrator drives one invocation end to end.
type Orchestrator struct {
	projectRoot string
	registry    *workspace.Registry
	log         *zap.Logger
	store       *StateStore

	engine     *execute.Engine
	validator  *prereq.Validator
	out        io.Writer
	newSession func() string
}

func New(projectRoot string, reg *workspace.Registry, store *StateStore, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		projectRoot: projectRoot,
		registry:    reg,
		log:         log,
		store:       store,
		engine:      execute.New(log),
		validator:   prereq.New(projectRoot, log),
		out:         os.Stdout,
		newSession:  NewSessionID,
	}
}

// WithEngine replaces the execution engine (tests).
func (o *Orchestrator) WithEngine(e *execute.Engine) *Orchestrator {
	o.engine = e
	return o
}

// WithValidator replaces the prerequisite validator (tests).
func (o *Orchestrator) WithValidator(v *prereq.Validator) *Orchestrator {
	o.validator = v
	return o
}

// WithOutput redirects the summary output.
func (o *Orchestrator) WithOutput(w io.Writer) *Orchestrator {
	o.out = w
	return o
}

// WithSessionIDs replaces session id generation (tests).
func (o *Orchestrator) WithSessionIDs(gen func() string) *Orchestrator {
	o.newSession = gen
	return o
}

// Run resolves (workspace, scope) into a plan and executes it sequentially,
// one session per planned command. A failing run never aborts the remaining
// plan; an interrupt does, recording the rest of the plan as cancelled. The
// aggregate status is the worst observed. An error is returned
// only for resolution failures (unknown scope), where no execution ever
// starts.
func (o *Orchestrator) Run(ctx context.Context, id workspace.ID, token string) (*Aggregate, error) {
	plan, err := scope.Plan(o.registry, id, token, o.projectRoot)
	if err != nil {
		return nil, err
	}

	agg := &Aggregate{Status: StatusPassed}
	for _, spec := range plan {
		res := o.runOne(ctx, spec)
		agg.Results = append(agg.Results, res)
		agg.Status = worse(agg.Status, res.Status)
	}

	o.persist(agg)
	o.printSummary(agg)
	return agg, nil
}

// runOne executes one CommandSpec under a fresh session: validate, execute
// with retry, then locate reports.
func (o *Orchestrator) runOne(ctx context.Context, spec scope.CommandSpec) RunResult {
	session := o.newSession()
	res := RunResult{
		SessionID: session,
		Workspace: spec.Workspace,
		Scope:     spec.Scope,
		Command:   spec.Run.String(),
		StartedAt: time.Now(),
	}

	// An interrupt delivered before this session starts skips validation and
	// execution entirely; the remaining plan is recorded as cancelled.
	if ctx.Err() != nil {
		o.log.Info("skipping session after interrupt",
			zap.String("session", session),
			zap.String("workspace", string(spec.Workspace)))
		res.Status = StatusCancelled
		res.Failure = "cancelled by interrupt"
		res.FinishedAt = time.Now()
		return res
	}

	o.log.Info("starting session",
		zap.String("session", session),
		zap.String("workspace", string(spec.Workspace)),
		zap.String("scope", spec.Scope))

	checks, err := o.validator.Validate(ctx, spec, session)
	if checks != nil {
		res.Checks = checks.Checks
		res.Remediations = checks.Remediations
	}
	if err != nil {
		// A probe killed by the interrupt is a cancellation, not a
		// prerequisite verdict; only genuine check failures block.
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			res.Failure = "cancelled by interrupt"
			res.FinishedAt = time.Now()
			return res
		}
		// Fatal prerequisite: no execution attempt may happen.
		res.Status = StatusBlocked
		res.Failure = err.Error()
		res.FinishedAt = time.Now()
		return res
	}

	outcome := o.engine.Execute(ctx, spec, checks.ExtraEnv)
	res.Attempts = outcome.Attempts

	switch outcome.Status {
	case execute.StatusSuccess:
		res.Status = StatusPassed
	case execute.StatusCancelled:
		res.Status = StatusCancelled
		res.Failure = "cancelled by interrupt"
	default:
		res.Status = StatusFailed
		last := outcome.Attempts[len(outcome.Attempts)-1]
		res.Failure = fmt.Sprintf("command failed after retry (exit %d)", last.ExitCode)
	}

	// Reports only exist for successful browser-family runs; "none" is a
	// clean outcome everywhere else.
	if res.Status == StatusPassed && spec.Family == workspace.FamilyBrowser {
		iteration := checks.ExtraEnv[prereq.ReportIterationVar]
		res.ReportPaths = report.Locate(o.projectRoot, o.registry, spec.Workspace, iteration)
	}

	res.FinishedAt = time.Now()
	return res
}

// persist writes session results and the last-run summary. State writes are
// best effort and never change the run's outcome.
func (o *Orchestrator) persist(agg *Aggregate) {
	last := LastRun{Status: agg.Status}
	for _, res := range agg.Results {
		last.Sessions = append(last.Sessions, res.SessionID)
		if res.Status != StatusPassed {
			last.Failed = append(last.Failed, res.SessionID)
		}
		if err := o.store.WriteSession(res); err != nil {
			o.log.Warn("writing session state", zap.String("session", res.SessionID), zap.Error(err))
		}
	}
	if err := o.store.WriteLastRun(last); err != nil {
		o.log.Warn("writing last-run state", zap.Error(err))
	}
}

func (o *Orchestrator) printSummary(agg *Aggregate) {
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, strings.Repeat("=", 60))
	fmt.Fprintln(o.out, "QA TEST RUN SUMMARY")
	fmt.Fprintln(o.out, strings.Repeat("=", 60))
	for _, res := range agg.Results {
		ws := string(res.Workspace)
		if ws == "" {
			ws = "auto-detect"
		}
		sc := res.Scope
		if sc == "" {
			sc = "default"
		}
		fmt.Fprintf(o.out, "Session %s  workspace=%s scope=%s  %s\n",
			res.SessionID, ws, sc, strings.ToUpper(string(res.Status)))
		if res.Failure != "" {
			fmt.Fprintf(o.out, "  %s\n", res.Failure)
		}
		for _, action := range res.Remediations {
			fmt.Fprintf(o.out, "  remediation: %s\n", action)
		}
		for _, path := range res.ReportPaths {
			fmt.Fprintf(o.out, "  report: %s\n", path)
		}
		if res.Status == StatusPassed && len(res.ReportPaths) == 0 {
			fmt.Fprintln(o.out, "  no HTML reports found")
		}
	}
	fmt.Fprintf(o.out, "Overall: %s\n", strings.ToUpper(string(agg.Status)))
}

// IsUnknownScope reports whether err is a scope-resolution failure, which
// belongs to the validation exit code class.
func IsUnknownScope(err error) bool {
	var us *scope.UnknownScopeError
	return errors.As(err, &us)
}

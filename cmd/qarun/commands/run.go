package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wingspanai/qarun/cmd/qarun/internal/clierr"
	"github.com/wingspanai/qarun/internal/orchestrator"
	"github.com/wingspanai/qarun/internal/request"
	"github.com/wingspanai/qarun/internal/scope"
	"github.com/wingspanai/qarun/internal/workspace"
)

var (
	runWorkspace string
	runStateDir  string
	runHook      bool
)

var runCmd = &cobra.Command{
	Use:   "run [request words...]",
	Short: "Resolve and execute QA tests",
	Long: `Run QA tests for a workspace and scope. The positional words form a
free-form request; a trailing -t or -t<scope> marker selects the scope
(smoke, critical, regression, quick, all). Without --workspace the target
workspace is inferred from uncommitted changes, then from the current
directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runHook {
			return runHookMode(cmd)
		}
		return runTests(cmd, args)
	},
}

func init() {
	// Flags come before the request words, so a trailing -t<scope> marker
	// stays a positional token instead of being parsed as a flag.
	runCmd.Flags().SetInterspersed(false)
	runCmd.Flags().StringVarP(&runWorkspace, "workspace", "w", "", "force the target workspace")
	runCmd.Flags().StringVar(&runStateDir, "state-dir", ".qarun/run", "directory to store run state")
	runCmd.Flags().BoolVar(&runHook, "hook", false, "read a prompt hook payload from stdin and print advisory output without executing")
}

// GetRunCmd exposes the command to the root assembly.
func GetRunCmd() *cobra.Command {
	return runCmd
}

func setup(cmd *cobra.Command) (projectRoot string, reg *workspace.Registry, err error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	projectRoot = request.FindProjectRoot(wd)

	reg, err = workspace.Load(projectRoot)
	if err != nil {
		return "", nil, clierr.Wrap(clierr.CodeValidation, "loading workspace registry", err)
	}
	return projectRoot, reg, nil
}

func resolveWorkspace(cmd *cobra.Command, projectRoot string, reg *workspace.Registry) (workspace.ID, error) {
	if runWorkspace != "" {
		id := workspace.ID(runWorkspace)
		if _, ok := reg.Lookup(id); !ok {
			return workspace.Undetected, clierr.Newf(clierr.CodeValidation,
				"unknown workspace %q (known: %s)", runWorkspace, strings.Join(reg.Names(), ", "))
		}
		return id, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return workspace.Undetected, err
	}
	return reg.Detect(cmd.Context(), projectRoot, wd, workspace.GitChangedFiles), nil
}

func runTests(cmd *cobra.Command, args []string) error {
	projectRoot, reg, err := setup(cmd)
	if err != nil {
		return err
	}

	req := request.Parse(strings.Join(args, " "))
	id, err := resolveWorkspace(cmd, projectRoot, reg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(projectRoot, reg, stateStore(projectRoot), logger)
	agg, err := orch.Run(cmd.Context(), id, req.Scope)
	if err != nil {
		if orchestrator.IsUnknownScope(err) {
			return clierr.Wrap(clierr.CodeValidation, "cannot resolve test command", err)
		}
		return err
	}

	switch agg.Status {
	case orchestrator.StatusPassed:
		return nil
	case orchestrator.StatusBlocked:
		return clierr.New(clierr.CodeValidation, firstFailure(agg))
	case orchestrator.StatusCancelled:
		return clierr.New(clierr.CodeExecution, "run cancelled")
	default:
		return clierr.New(clierr.CodeExecution, firstFailure(agg))
	}
}

func firstFailure(agg *orchestrator.Aggregate) string {
	for _, res := range agg.Results {
		if res.Failure != "" {
			return res.Failure
		}
	}
	return "test run failed"
}

// runHookMode implements the prompt-hook integration: detect the -t marker,
// report the resolved configuration as JSON, execute nothing.
func runHookMode(cmd *cobra.Command) error {
	in, err := request.DecodeHook(cmd.InOrStdin())
	if err != nil {
		return clierr.Wrap(clierr.CodeValidation, "reading hook input", err)
	}

	req := request.Parse(in.Prompt)
	if !req.HasMarker {
		// No test marker: the prompt proceeds untouched.
		return nil
	}

	projectRoot, reg, err := setup(cmd)
	if err != nil {
		return err
	}
	id, err := resolveWorkspace(cmd, projectRoot, reg)
	if err != nil {
		return err
	}

	plan, err := scope.Plan(reg, id, req.Scope, projectRoot)
	if err != nil {
		return clierr.Wrap(clierr.CodeValidation, "cannot resolve test command", err)
	}

	out := request.BuildHookOutput(req, id, plan[0].Run.String())
	return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
}

func stateStore(projectRoot string) *orchestrator.StateStore {
	dir := runStateDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectRoot, dir)
	}
	return orchestrator.NewStateStore(dir)
}

func newScopesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scopes",
		Short: "List known test scopes",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range scope.Known() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
		},
	}
}

func newWorkspacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces",
		Short: "List known workspaces and the detection result",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, reg, err := setup(cmd)
			if err != nil {
				return err
			}
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			detected := reg.Detect(cmd.Context(), projectRoot, wd, workspace.GitChangedFiles)
			for _, ws := range reg.Workspaces {
				marker := " "
				if workspace.ID(ws.Name) == detected {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %s\n", marker, ws.Name, ws.Family)
			}
			if detected == workspace.Undetected {
				fmt.Fprintln(cmd.OutOrStdout(), "no workspace detected")
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the last run's outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, _, err := setup(cmd)
			if err != nil {
				return err
			}
			store := stateStore(projectRoot)
			last, err := store.ReadLastRun()
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No run state found.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", last.Status)
			for _, session := range last.Sessions {
				res, err := store.ReadSession(session)
				if err != nil || res == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s (no detail)\n", session)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  workspace=%s  %s  attempts=%d\n",
					session, res.Workspace, res.Status, len(res.Attempts))
				for _, path := range res.ReportPaths {
					fmt.Fprintf(cmd.OutOrStdout(), "    report: %s\n", path)
				}
			}
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear persisted run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, _, err := setup(cmd)
			if err != nil {
				return err
			}
			return stateStore(projectRoot).Reset()
		},
	}
}

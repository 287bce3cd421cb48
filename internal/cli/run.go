package cli

import (
	"fmt"
	"io"
	"strings"

	"opsagent/internal/app"
	"opsagent/internal/logger"
	"opsagent/internal/logsource"
	"opsagent/internal/report"
	"opsagent/internal/runner"
	"opsagent/internal/store/sqlite"

	"github.com/spf13/cobra"
)

type runOptions struct {
	logFile    string
	batchLines int
	live       bool
	htmlPath   string
	jsonPath   string
	savePolicy bool
	record     bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run one episode over canned scenarios or a log file",
		Long: fmt.Sprintf(`Run feeds batches of log lines through the decision loop and prints one line
per step followed by the learned table.

Without arguments the demo episode (%s) is used. Scenario names are %s.
With --log-file the file is cut into batches of --batch-lines lines instead.`,
			strings.Join(logsource.DemoScenarios, ", "), strings.Join(logsource.ScenarioNames(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEpisode(cmd, root, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.logFile, "log-file", "", "read batches from this log file instead of scenarios")
	f.IntVar(&opts.batchLines, "batch-lines", logsource.DefaultBatchLines, "lines per batch with --log-file")
	f.BoolVar(&opts.live, "live", false, "execute commands through the shell instead of a dry run")
	f.StringVar(&opts.htmlPath, "report-html", "", "write an HTML chart report to this path")
	f.StringVar(&opts.jsonPath, "results", "", "write the episode results as JSON to this path")
	f.BoolVar(&opts.savePolicy, "save-policy", true, "save the policy to agent.policy_path after the episode")
	f.BoolVar(&opts.record, "record", false, "record steps in the store.path database")
	return cmd
}

func runEpisode(cmd *cobra.Command, root *rootOptions, opts *runOptions, args []string) error {
	cfg := root.cfg
	if opts.live {
		cfg.Agent.DryRun = false
	}
	src, err := episodeSource(opts, args)
	if err != nil {
		return err
	}
	a, err := app.BuildAgent(cfg.Agent)
	if err != nil {
		return err
	}

	var runOpts []runner.Option
	if opts.record && cfg.Store.Enabled() {
		st, err := sqlite.NewSqliteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		runOpts = append(runOpts, runner.WithRecorder(st.Steps()))
	}
	r := runner.New(a, app.RunnerConfig(cfg), runOpts...)
	if !cfg.Agent.DryRun {
		logger.Warnf("run: live mode, commands for %s will be executed", a.Descriptor().Name)
	}

	res, err := r.Run(cmd.Context(), src)
	out := cmd.OutOrStdout()
	printSteps(out, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\ntotal reward: %g over %d steps (run %s)\n\n", res.TotalReward, res.TotalSteps, res.RunID)
	if err := report.FormatPolicyTable(out, a.Table(), a.Catalog().Names()); err != nil {
		return err
	}

	if opts.htmlPath != "" {
		if err := report.WriteEpisodeHTML(opts.htmlPath, res); err != nil {
			return err
		}
		fmt.Fprintf(out, "report written to %s\n", opts.htmlPath)
	}
	if opts.jsonPath != "" {
		if err := report.WriteEpisodeJSON(opts.jsonPath, res); err != nil {
			return err
		}
		fmt.Fprintf(out, "results written to %s\n", opts.jsonPath)
	}
	if opts.savePolicy && strings.TrimSpace(cfg.Agent.PolicyPath) != "" {
		if err := a.SavePolicy(cfg.Agent.PolicyPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "policy saved to %s\n", cfg.Agent.PolicyPath)
	}
	return nil
}

func episodeSource(opts *runOptions, args []string) (logsource.Source, error) {
	if opts.logFile != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("scenario names and --log-file are exclusive")
		}
		return logsource.FileSource(opts.logFile, opts.batchLines)
	}
	if len(args) == 0 {
		args = logsource.DemoScenarios
	}
	return logsource.ScenarioSource(args...)
}

func printSteps(w io.Writer, res runner.EpisodeResult) {
	for _, st := range res.Steps {
		label := st.Label
		if label == "" {
			label = "-"
		}
		action := st.Action
		if action == "" {
			action = "(none)"
		}
		outcome := "skipped"
		switch {
		case st.Suppressed:
			outcome = "suppressed"
		case st.Result != nil && st.Result.Success:
			outcome = "ok"
		case st.Result != nil:
			outcome = "failed"
		}
		fmt.Fprintf(w, "step %d [%s] state=%s score=%d action=%s %s reward=%g\n",
			st.Step, label, st.State.Key(), st.State.PerformanceScore, action, outcome, st.Reward)
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/app"
	"opsagent/internal/logsource"
	"opsagent/internal/report"
	"opsagent/internal/state"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newExtractCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [log-file|-]",
		Short: "Classify a batch of log lines and print the snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.BuildAgent(root.cfg.Agent)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			lines, err := logsource.ReadLines(r)
			if err != nil {
				return err
			}
			snap := a.Extractor().Extract(lines)
			return writeJSON(cmd.OutOrStdout(), struct {
				state.Snapshot
				Key string `json:"state_key"`
			}{snap, snap.Key()})
		},
	}
}

type actionsOptions struct {
	env    string
	errors int
}

func newActionsCmd(root *rootOptions) *cobra.Command {
	opts := &actionsOptions{}
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the catalog with risk levels and universal categories",
		Long: `Actions prints every action the descriptor defines. With --env or --errors it
also marks which actions the risk policy allows for that situation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.BuildAgent(root.cfg.Agent)
			if err != nil {
				return err
			}
			cat := a.Catalog()
			filter := cmd.Flags().Changed("env") || cmd.Flags().Changed("errors")
			allowed := map[string]bool{}
			if filter {
				snap := state.Snapshot{
					Env:        opts.env,
					Status:     state.StatusFor(opts.errors),
					ErrorCount: opts.errors,
				}
				for _, name := range cat.ValidActions(snap) {
					allowed[name] = true
				}
			}

			tw := report.NewTable()
			header := table.Row{"NAME", "RISK", "CATEGORY", "COMMAND"}
			if filter {
				header = append(header, "ALLOWED")
			}
			tw.AppendHeader(header)
			for _, act := range cat.Actions() {
				row := table.Row{act.Name, string(act.RiskLevel), cat.Category(act.Name), act.Command}
				if filter {
					row = append(row, fmt.Sprintf("%v", allowed[act.Name]))
				}
				tw.AppendRow(row)
			}
			return report.Render(cmd.OutOrStdout(), tw)
		},
	}
	cmd.Flags().StringVar(&opts.env, "env", state.DefaultEnv, "environment to evaluate the risk policy for")
	cmd.Flags().IntVar(&opts.errors, "errors", 0, "error count to evaluate the risk policy for")
	return cmd
}

func newPolicyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policy [policy-file]",
		Short: "Print a saved policy as a table",
		Long: `Policy reads a saved policy document (agent.policy_path when no file is given)
and prints its hyperparameters and value table. The best action per state is
marked with '*'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(root.cfg.Agent.PolicyPath)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no policy file given and agent.policy_path is empty")
			}
			doc, err := agent.ReadPolicy(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var actions []string
			summary := agent.PolicySummary{TableSize: len(doc.QTable), Epsilon: doc.Hyperparameters.Epsilon}
			if doc.AppSpec != nil {
				actions = doc.AppSpec.ActionNames()
				summary.AppName = doc.AppSpec.Name
				summary.AvailableActions = actions
			} else {
				actions = tableActions(doc.QTable)
			}
			if err := report.FormatSummary(out, summary); err != nil {
				return err
			}
			fmt.Fprintf(out, "learning_rate=%g discount_factor=%g\n\n", doc.Hyperparameters.LearningRate, doc.Hyperparameters.DiscountFactor)
			return report.FormatPolicyTable(out, doc.QTable, actions)
		},
	}
}

// tableActions collects the action columns of a policy saved without its
// descriptor, in order of first appearance across sorted state keys.
func tableActions(t agent.Table) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range t.Entries() {
		if !seen[e.Action] {
			seen[e.Action] = true
			out = append(out, e.Action)
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

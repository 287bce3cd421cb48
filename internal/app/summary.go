package app

import (
	"fmt"
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/config"
	"opsagent/internal/logger"
)

type StartupSummary struct {
	App        string
	Env        string
	Actions    []string
	Hyper      agent.Hyperparameters
	DryRun     bool
	Timeout    string
	Store      string
	HTTPAddr   string
	PolicyPath string
	States     int
}

func buildSummary(cfg *config.Config, a *agent.Agent) *StartupSummary {
	timeout := "none"
	if d := cfg.Agent.ExecTimeout(); d > 0 {
		timeout = d.String()
	}
	return &StartupSummary{
		App:        a.Descriptor().Name,
		Env:        cfg.App.Env,
		Actions:    a.Catalog().Names(),
		Hyper:      a.Hyperparameters(),
		DryRun:     cfg.Agent.DryRun,
		Timeout:    timeout,
		Store:      cfg.Store.Path,
		HTTPAddr:   cfg.App.HTTPAddr,
		PolicyPath: cfg.Agent.PolicyPath,
		States:     len(a.Table()),
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "  app:          %s (%s)\n", s.App, s.Env)
	fmt.Fprintf(&b, "  actions:      %s\n", formatList(s.Actions))
	fmt.Fprintf(&b, "  alpha/gamma:  %g / %g\n", s.Hyper.LearningRate, s.Hyper.DiscountFactor)
	fmt.Fprintf(&b, "  epsilon:      %g\n", s.Hyper.Epsilon)
	fmt.Fprintf(&b, "  known states: %d\n", s.States)
	fmt.Fprintf(&b, "  dry run:      %v (timeout %s)\n", s.DryRun, s.Timeout)
	fmt.Fprintf(&b, "  step store:   %s\n", orDash(s.Store))
	fmt.Fprintf(&b, "  policy file:  %s\n", orDash(s.PolicyPath))
	fmt.Fprintf(&b, "  http:         %s\n", orDash(s.HTTPAddr))
	b.WriteString(strings.Repeat("=", 60))
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"opsagent/internal/descriptor"
	"opsagent/internal/logger"
)

// Shell is the interpreter used for live execution.
var Shell = []string{"sh", "-c"}

// waitDelay bounds how long a cancelled command may keep its output pipes open
// through grandchildren.
const waitDelay = 500 * time.Millisecond

// Result reports the outcome of one execution attempt. Failures of any kind are
// carried here; Execute never returns a Go error.
type Result struct {
	Success   bool                 `json:"success"`
	Action    string               `json:"action"`
	Command   string               `json:"command,omitempty"`
	RiskLevel descriptor.RiskLevel `json:"risk_level,omitempty"`
	Executed  bool                 `json:"executed"`
	Message   string               `json:"message,omitempty"`
	Output    string               `json:"output,omitempty"`
	Error     string               `json:"error,omitempty"`
	ExitCode  int                  `json:"exit_code"`
	Unknown   bool                 `json:"unknown,omitempty"`
	Duration  time.Duration        `json:"duration,omitempty"`
}

// Execute runs or simulates the named action. In dry-run mode nothing is spawned.
// In live mode the command goes through the host shell; stdout and stderr are
// captured verbatim and Success mirrors the exit status.
//
// No timeout is applied here. A hung command blocks until ctx is done, so callers
// that need responsiveness must pass a context with a deadline.
func (c *Catalog) Execute(ctx context.Context, name string, dryRun bool) Result {
	action, ok := c.Action(name)
	if !ok {
		return Result{
			Success:  false,
			Action:   name,
			Unknown:  true,
			ExitCode: -1,
			Error:    fmt.Sprintf("unknown action: %s", name),
		}
	}
	if dryRun {
		return Result{
			Success:   true,
			Action:    action.Name,
			Command:   action.Command,
			RiskLevel: action.RiskLevel,
			Executed:  false,
			Message:   fmt.Sprintf("Would execute: %s", action.Command),
		}
	}
	return runShell(ctx, action)
}

func runShell(ctx context.Context, action descriptor.ActionDefinition) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	res := Result{
		Action:    action.Name,
		Command:   action.Command,
		RiskLevel: action.RiskLevel,
	}
	args := append(append([]string(nil), Shell[1:]...), action.Command)
	cmd := exec.CommandContext(ctx, Shell[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = stdout.String()
	res.Error = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Executed = true
		res.Success = true
		res.Message = fmt.Sprintf("Executed: %s", action.Command)
	case ctx.Err() != nil:
		res.Executed = true
		res.ExitCode = -1
		res.Message = fmt.Sprintf("Aborted: %s", action.Command)
		res.Error = joinErr(res.Error, ctx.Err())
	case errors.As(err, &exitErr):
		res.Executed = true
		res.ExitCode = exitErr.ExitCode()
		res.Message = fmt.Sprintf("Failed (exit %d): %s", res.ExitCode, action.Command)
	default:
		res.ExitCode = -1
		res.Message = fmt.Sprintf("Could not start: %s", action.Command)
		res.Error = joinErr(res.Error, err)
	}
	logger.Debugf("catalog: action=%s success=%v exit=%d took=%s", action.Name, res.Success, res.ExitCode, res.Duration)
	return res
}

func joinErr(stderr string, err error) string {
	if stderr == "" {
		return err.Error()
	}
	return stderr + "\n" + err.Error()
}

// Package runner drives the agent through episodes: observe a batch, act, score
// the transition and learn from it.
package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/catalog"
	"opsagent/internal/logger"
	"opsagent/internal/logsource"
	"opsagent/internal/pkg/circuit"
	"opsagent/internal/reward"
	"opsagent/internal/state"
	"opsagent/internal/store/model"

	"github.com/google/uuid"
)

// Executor runs catalog actions. *catalog.Catalog satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, dryRun bool) catalog.Result
}

// Recorder persists step rows. A store step repository satisfies it.
type Recorder interface {
	InsertStep(ctx context.Context, step *model.DecisionStepModel) error
}

type Config struct {
	DryRun bool
	// ExecTimeout bounds each live command; zero means no bound.
	ExecTimeout      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Reward           reward.Policy
}

func DefaultConfig() Config {
	return Config{DryRun: true, Reward: reward.DefaultPolicy()}
}

type Runner struct {
	agent   *agent.Agent
	exec    Executor
	rec     Recorder
	cfg     Config
	breaker *circuit.Breaker
	runID   string
	step    int
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Runner)

// WithExecutor replaces the agent's catalog as the action executor.
func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		if e != nil {
			r.exec = e
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func New(a *agent.Agent, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		agent: a,
		exec:  a.Catalog(),
		cfg:   cfg,
		runID: uuid.NewString(),
		now:   time.Now,
		log:   logger.With("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.breaker = circuit.NewBreaker("live-exec:"+a.Descriptor().Name, cfg.BreakerThreshold, cfg.BreakerCooldown).WithClock(r.now)
	return r
}

func (r *Runner) RunID() string             { return r.runID }
func (r *Runner) Agent() *agent.Agent       { return r.agent }
func (r *Runner) Breaker() *circuit.Breaker { return r.breaker }

// Step runs one cycle over lines.
func (r *Runner) Step(ctx context.Context, lines []string) (StepRecord, error) {
	return r.cycle(ctx, "", lines)
}

func (r *Runner) cycle(ctx context.Context, label string, lines []string) (StepRecord, error) {
	if err := ctx.Err(); err != nil {
		return StepRecord{}, err
	}
	prev, hadPrev := r.agent.Current()
	snap := r.agent.ProcessLogs(lines)
	r.step++
	rec := StepRecord{
		RunID:  r.runID,
		Step:   r.step,
		Label:  label,
		State:  snap,
		DryRun: r.cfg.DryRun,
		At:     r.now(),
	}

	action, ok := r.agent.ChooseAction(nil)
	if !ok {
		r.log.Info("no action", "step", rec.Step, "state", snap.Key())
		r.record(ctx, rec)
		return rec, nil
	}
	rec.Action = action

	res, suppressed := r.execute(ctx, action)
	rec.Result = &res
	rec.Suppressed = suppressed
	if !suppressed {
		var before *state.Snapshot
		if hadPrev {
			before = &prev
		}
		rec.Reward = r.cfg.Reward.Score(before, snap, res)
		r.agent.UpdateValue(rec.Reward, nil)
	}
	r.log.Info("step",
		"step", rec.Step,
		"state", snap.Key(),
		"score", snap.PerformanceScore,
		"action", action,
		"success", res.Success,
		"reward", rec.Reward,
		"suppressed", suppressed,
	)
	r.record(ctx, rec)
	return rec, nil
}

// execute applies dry-run, timeout and breaker policy around the executor. The
// second result is true when the breaker suppressed a live run.
func (r *Runner) execute(ctx context.Context, action string) (catalog.Result, bool) {
	if r.cfg.DryRun {
		return r.exec.Execute(ctx, action, true), false
	}
	if !r.breaker.Allow() {
		return catalog.Result{
			Action:   action,
			ExitCode: -1,
			Message:  "Suppressed: live execution paused after repeated failures",
			Error:    "circuit open",
		}, true
	}
	execCtx := ctx
	if r.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.cfg.ExecTimeout)
		defer cancel()
	}
	res := r.exec.Execute(execCtx, action, false)
	switch {
	case res.Success:
		r.breaker.RecordSuccess()
	case res.Unknown:
		r.breaker.Release()
	default:
		r.breaker.RecordFailure()
	}
	return res, false
}

func (r *Runner) record(ctx context.Context, rec StepRecord) {
	if r.rec == nil {
		return
	}
	if err := r.rec.InsertStep(ctx, rec.Model()); err != nil {
		logger.Warnf("runner: record step %d of %s: %v", rec.Step, rec.RunID, err)
	}
}

// Run consumes src until it is exhausted or ctx ends. The partial result is
// returned along with the context error on cancellation.
func (r *Runner) Run(ctx context.Context, src logsource.Source) (EpisodeResult, error) {
	res := EpisodeResult{
		RunID:     r.runID,
		AppName:   r.agent.Descriptor().Name,
		StartedAt: r.now(),
	}
	finish := func(err error) (EpisodeResult, error) {
		res.TotalSteps = len(res.Steps)
		res.FinalPolicy = r.agent.Summary()
		res.FinishedAt = r.now()
		return res, err
	}
	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		if err != nil {
			return finish(err)
		}
		rec, err := r.cycle(ctx, batch.Label, batch.Lines)
		if err != nil {
			return finish(err)
		}
		res.Steps = append(res.Steps, rec)
		res.TotalReward += rec.Reward
	}
}

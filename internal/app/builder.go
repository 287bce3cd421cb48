package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/config"
	"opsagent/internal/logger"
	"opsagent/internal/logsource"
	"opsagent/internal/runner"
	"opsagent/internal/store"
	"opsagent/internal/store/sqlite"
	statushttp "opsagent/internal/transport/http/status"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn  func(path string) (store.Store, error)
	sourceFn func(cfg config.FollowConfig, fallbackPath string) (logsource.Source, io.Closer, error)
	httpFn   func(addr string, a *agent.Agent, steps store.StepRepository) (*statushttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStore replaces the SQLite step store.
func WithStore(s store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(string) (store.Store, error) { return s, nil }
	}
}

// WithSource replaces the followed log file.
func WithSource(src logsource.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(config.FollowConfig, string) (logsource.Source, io.Closer, error) {
			return src, nil, nil
		}
	}
}

// WithoutHTTP disables the status server.
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) {
		b.httpFn = func(string, *agent.Agent, store.StepRepository) (*statushttp.Server, error) { return nil, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		storeFn:  openStore,
		sourceFn: followSource,
		httpFn:   buildStatusServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(path string) (store.Store, error) {
	return sqlite.NewSqliteStore(path)
}

func followSource(cfg config.FollowConfig, fallbackPath string) (logsource.Source, io.Closer, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = strings.TrimSpace(fallbackPath)
	}
	if path == "" {
		return nil, nil, errors.New("follow.path is empty and the descriptor has no log_location")
	}
	f, err := logsource.Follow(path, logsource.FollowOptions{
		Interval:   cfg.Interval(),
		Burst:      cfg.Burst,
		BatchLines: cfg.BatchLines,
	})
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func buildStatusServer(addr string, a *agent.Agent, steps store.StepRepository) (*statushttp.Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, nil
	}
	return statushttp.NewServer(statushttp.ServerConfig{Addr: addr, Agent: a, Steps: steps})
}

// Build wires agent, store, runner, log source and status server.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	a, err := BuildAgent(cfg.Agent)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, agent: a}
	var steps store.StepRepository
	if cfg.Store.Enabled() {
		st, err := b.storeFn(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open step store: %w", err)
		}
		app.store = st
		steps = st.Steps()
	}

	opts := []runner.Option{}
	if steps != nil {
		opts = append(opts, runner.WithRecorder(steps))
	}
	app.runner = runner.New(a, RunnerConfig(cfg), opts...)

	src, closer, err := b.sourceFn(cfg.Follow, a.Descriptor().LogLocation)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("log source: %w", err)
	}
	app.source, app.sourceCloser = src, closer

	srv, err := b.httpFn(cfg.App.HTTPAddr, a, steps)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("status http: %w", err)
	}
	app.http = srv
	app.Summary = buildSummary(cfg, a)
	return app, nil
}

// BuildAgent creates the agent described by cfg. When the policy file exists
// its table and hyperparameters are restored; the configured descriptor takes
// precedence over the one embedded in the policy.
func BuildAgent(cfg config.AgentConfig) (*agent.Agent, error) {
	opts := []agent.Option{agent.WithHyperparameters(cfg.Hyperparameters())}
	if cfg.Seed != 0 {
		opts = append(opts, agent.WithSeed(cfg.Seed))
	}
	policy := strings.TrimSpace(cfg.PolicyPath)
	descPath := strings.TrimSpace(cfg.DescriptorPath)
	hasPolicy := policy != "" && fileExists(policy)

	switch {
	case hasPolicy && descPath != "" && fileExists(descPath):
		a, err := agent.NewFromFile(descPath, opts...)
		if err != nil {
			return nil, err
		}
		if err := a.LoadPolicy(policy); err != nil {
			return nil, err
		}
		logger.Infof("app: restored policy %s onto descriptor %s", policy, descPath)
		return a, nil
	case hasPolicy:
		logger.Infof("app: restoring agent from policy %s", policy)
		return agent.NewFromPolicy(policy, opts...)
	case descPath != "":
		return agent.NewFromFile(descPath, opts...)
	default:
		return nil, fmt.Errorf("no descriptor at %q and no policy at %q", descPath, policy)
	}
}

// RunnerConfig maps the agent and reward sections onto runner settings.
func RunnerConfig(cfg *config.Config) runner.Config {
	return runner.Config{
		DryRun:           cfg.Agent.DryRun,
		ExecTimeout:      cfg.Agent.ExecTimeout(),
		BreakerThreshold: cfg.Agent.BreakerThreshold,
		BreakerCooldown:  cfg.Agent.BreakerCooldown(),
		Reward:           cfg.Reward.Policy(),
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/config"
	"opsagent/internal/logger"
	"opsagent/internal/logsource"
	"opsagent/internal/runner"
	"opsagent/internal/store"
	statushttp "opsagent/internal/transport/http/status"

	"golang.org/x/sync/errgroup"
)

// App runs the decision loop over a followed log next to the status server.
type App struct {
	cfg          *config.Config
	agent        *agent.Agent
	runner       *runner.Runner
	store        store.Store
	source       logsource.Source
	sourceCloser io.Closer
	http         *statushttp.Server
	Summary      *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run blocks until ctx is cancelled, the source is exhausted or a component
// fails. The policy is saved on the way out when a policy path is configured.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.source == nil {
		return fmt.Errorf("log source not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, gctx := errgroup.WithContext(ctx)
	runCtx, stopHTTP := context.WithCancel(gctx)
	defer stopHTTP()

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(runCtx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		defer stopHTTP()
		res, err := a.runner.Run(runCtx, a.source)
		logger.Infof("app: run %s finished steps=%d total_reward=%g", res.RunID, res.TotalSteps, res.TotalReward)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("runner: %w", err)
		}
		return nil
	})

	err := group.Wait()
	if saveErr := a.savePolicy(); saveErr != nil {
		err = errors.Join(err, saveErr)
	}
	return err
}

func (a *App) savePolicy() error {
	path := strings.TrimSpace(a.cfg.Agent.PolicyPath)
	if path == "" {
		return nil
	}
	if err := a.agent.SavePolicy(path); err != nil {
		return err
	}
	logger.Infof("app: policy saved to %s", path)
	return nil
}

// Close releases the store and the log source. It is safe to call twice.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.sourceCloser != nil {
		_ = a.sourceCloser.Close()
		a.sourceCloser = nil
	}
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
}

func (a *App) Agent() *agent.Agent {
	if a == nil {
		return nil
	}
	return a.agent
}

func (a *App) Runner() *runner.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

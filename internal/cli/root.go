// Package cli holds the opsagent command tree.
package cli

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"opsagent/internal/config"
	"opsagent/internal/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgFile    string
	logLevel   string
	descriptor string

	cfg     *config.Config
	logFile *os.File
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "opsagent",
		Short: "Learn which remediation to run from application logs",
		Long: `opsagent reads application logs, classifies the application's health and
picks a corrective action from the application's descriptor. Action values are
learned with tabular Q-learning; commands run as dry runs unless asked otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logFile != nil {
				_ = opts.logFile.Close()
				opts.logFile = nil
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default $"+config.EnvPath+", else built-in defaults)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override app.log_level")
	flags.StringVarP(&opts.descriptor, "descriptor", "d", "", "override agent.descriptor_path")

	root.AddCommand(
		newRunCmd(opts),
		newExtractCmd(opts),
		newActionsCmd(opts),
		newScanCmd(opts),
		newServeCmd(opts),
		newPolicyCmd(opts),
	)
	return root
}

func (o *rootOptions) load() error {
	path := config.ResolvePath(o.cfgFile)
	if path == "" {
		o.cfg = config.Default()
	} else {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	if d := strings.TrimSpace(o.descriptor); d != "" {
		o.cfg.Agent.DescriptorPath = d
	}
	if l := strings.TrimSpace(o.logLevel); l != "" {
		o.cfg.App.LogLevel = l
	}
	f, err := setupLogOutput(o.cfg.App.LogPath)
	if err != nil {
		return err
	}
	o.logFile = f
	logger.SetLevel(o.cfg.App.LogLevel)
	return nil
}

// setupLogOutput sends logs to stderr, teed to path when one is configured.
// Command output owns stdout.
func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		logger.SetOutput(os.Stderr)
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pario-ai/fairlens/pkg/config"
)

var version = "dev"

// cli carries the state shared by every subcommand once PersistentPreRunE
// has run.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	c := &cli{}
	root := &cobra.Command{
		Use:           "fairlens",
		Short:         "Fairlens: multi-layer bias detection for AI training sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to fairlens config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(c),
		newAnalyzeCmd(c),
		newFairnessCmd(c),
		newAuditCmd(c),
		newMCPCmd(c),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *cli) init() error {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		cfg, err = config.Load(c.configPath)
		if err != nil {
			return err
		}
	}
	logger, err := newLogger(cfg.Log, c.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

// newLogger builds the process logger. Logs always go to stderr so that
// stdout stays free for command output and the MCP protocol.
func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == config.FormatConsole {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

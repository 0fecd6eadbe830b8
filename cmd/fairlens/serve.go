package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/alert"
	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/analyzer/local"
	"github.com/pario-ai/fairlens/pkg/analyzer/remote"
	"github.com/pario-ai/fairlens/pkg/api"
	"github.com/pario-ai/fairlens/pkg/audit"
	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/engine"
)

func newServeCmd(c *cli) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bias detection HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			addr := c.cfg.Listen
			if listen != "" {
				addr = listen
			}
			srv := api.New(addr, a.engine, a.caches, api.WithLogger(c.logger))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

// app is the wired engine with the stores it depends on.
type app struct {
	engine *engine.Engine
	caches *cache.Manager
	audit  *audit.Logger
}

// openApp builds caches, audit log, analyzer service, alert dispatchers and
// the engine from cfg, and opens them.
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	caches, err := cache.NewManager(cfg.Cache, cache.WithManagerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init caches: %w", err)
	}
	a := &app{caches: caches}

	if cfg.Audit.Enabled {
		a.audit, err = audit.New(cfg.Audit, audit.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
	}

	svc, err := newAnalyzer(cfg, logger, a.audit)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDispatcher(newDispatcher(cfg.Alerts, logger)),
	}
	if a.audit != nil {
		opts = append(opts, engine.WithAuditor(a.audit))
	}
	a.engine, err = engine.New(cfg.Engine, svc, caches, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	caches.Open()
	if err := a.engine.Open(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return a, nil
}

// Close shuts down the engine, then the caches and the audit log.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	errs = append(errs, a.caches.Close())
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	return errors.Join(errs...)
}

func newAnalyzer(cfg *config.Config, logger *zap.Logger, history *audit.Logger) (analyzer.Service, error) {
	if cfg.Analyzer.Mode == config.ModeLocal {
		opts := []local.Option{local.WithLogger(logger)}
		if history != nil {
			opts = append(opts, local.WithHistory(history))
		}
		return local.New(opts...), nil
	}

	client, err := remote.New(cfg.Analyzer.URL, cfg.Analyzer.APIKey, cfg.Analyzer.Timeout,
		remote.WithLogger(logger),
		remote.WithRateLimit(cfg.Analyzer.RequestsPerSecond, cfg.Analyzer.Burst),
	)
	if err != nil {
		return nil, fmt.Errorf("init analyzer client: %w", err)
	}
	return client, nil
}

func newDispatcher(ac config.AlertsConfig, logger *zap.Logger) alert.Dispatcher {
	d := alert.Multi{alert.NewLogDispatcher(logger)}
	if ac.WebhookURL != "" {
		d = append(d, alert.NewWebhookDispatcher(ac.WebhookURL, ac.Timeout))
	}
	return d
}

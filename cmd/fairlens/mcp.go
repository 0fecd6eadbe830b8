package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/fairlens/pkg/mcp"
)

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start fairlens as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var auditor mcp.AuditSearcher
			if a.audit != nil {
				auditor = a.audit
			}
			srv := mcp.New(a.engine, a.caches, auditor, version, c.logger)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

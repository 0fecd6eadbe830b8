package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/fairlens/pkg/audit"
	"github.com/pario-ai/fairlens/pkg/models"
)

func newAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the bias analysis audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(c),
		newAuditStatsCmd(c),
		newAuditCleanupCmd(c),
	)
	return cmd
}

func newAuditSearchCmd(c *cli) *cobra.Command {
	var (
		level       string
		minScore    float64
		since       string
		subject     string
		subjectHash string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := c.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				MinScore:    minScore,
				SubjectHash: subjectHash,
				Limit:       limit,
			}
			if subject != "" {
				opts.SubjectHash = l.SubjectKey(subject)
			}
			if level != "" {
				opts.AlertLevel, err = models.ParseAlertLevel(level)
				if err != nil {
					return err
				}
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			writeAuditEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "filter by alert level (low, medium, high, critical)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "only entries with an overall score at or above this value")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&subject, "session", "", "filter by session ID (hashed when hashing is enabled)")
	cmd.Flags().StringVar(&subjectHash, "subject-hash", "", "filter by stored subject hash")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by alert level and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := c.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			writeAuditStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newAuditCleanupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := c.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries.\n", deleted)
			return nil
		},
	}
}

func (c *cli) openAuditLogger() (*audit.Logger, func(), error) {
	if !c.cfg.Audit.Enabled {
		return nil, nil, errors.New("audit logging is disabled in the configuration")
	}
	l, err := audit.New(c.cfg.Audit, audit.WithLogger(c.logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func writeAuditEntries(w io.Writer, entries []models.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries found.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-9s %8s %10s %-20s %s\n",
		"AUDIT ID", "TIME", "LEVEL", "SCORE", "CONFIDENCE", "SUBJECT", "TAG")
	b.WriteString(strings.Repeat("-", 130) + "\n")
	for _, e := range entries {
		subject := e.SubjectHash
		if len(subject) > 20 {
			subject = subject[:8] + "..." + subject[len(subject)-9:]
		}
		fmt.Fprintf(&b, "%-36s %-20s %-9s %8.4f %10.4f %-20s %s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.AlertLevel,
			e.OverallBiasScore, e.Confidence, subject, e.ParticipantTag)
	}
	fmt.Fprint(w, b.String())
}

func writeAuditStats(w io.Writer, stats []models.AuditStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No audit stats found.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-12s %8s %10s\n", "LEVEL", "DAY", "COUNT", "AVG SCORE")
	b.WriteString(strings.Repeat("-", 43) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-10s %-12s %8d %10.4f\n", s.AlertLevel, s.Day, s.Count, s.AvgScore)
	}
	fmt.Fprint(w, b.String())
}

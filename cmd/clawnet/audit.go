package clawnet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/igorsilveira/clawnet/pkg/audit"
	"github.com/igorsilveira/clawnet/pkg/store"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the protocol audit log",
	RunE:  runAudit,
}

var (
	auditEventType string
	auditSubjectID string
	auditAgentID   string
	auditLimit     int
	auditSince     string
	auditCounts    bool
)

func init() {
	auditCmd.Flags().StringVar(&auditEventType, "type", "", "filter by event type (e.g. escrow_transition)")
	auditCmd.Flags().StringVar(&auditSubjectID, "subject", "", "filter by subject id (message, channel or escrow)")
	auditCmd.Flags().StringVar(&auditAgentID, "agent", "", "filter by acting agent id")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of entries")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "show entries since (e.g. 2026-01-01)")
	auditCmd.Flags().BoolVar(&auditCounts, "counts", false, "print entry counts per event type")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.New(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = db.Close() }()

	auditLog, err := audit.New(db.DB())
	if err != nil {
		return fmt.Errorf("initializing audit logger: %w", err)
	}

	out := cmd.OutOrStdout()
	ctx := context.Background()

	if auditCounts {
		counts, err := auditLog.Count(ctx)
		if err != nil {
			return fmt.Errorf("counting audit entries: %w", err)
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "%-20s %d\n", t, counts[t])
		}
		return nil
	}

	filter := audit.Filter{
		EventType: auditEventType,
		SubjectID: auditSubjectID,
		AgentID:   auditAgentID,
		Limit:     auditLimit,
	}
	if auditSince != "" {
		t, err := time.Parse("2006-01-02", auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use YYYY-MM-DD): %w", err)
		}
		filter.Since = t
	}

	entries, err := auditLog.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries found.")
		return nil
	}

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Fprintf(out, "[%s] %-18s subject=%-14s agent=%-14s %s\n",
			ts, e.EventType, e.SubjectID, e.AgentID, e.Detail,
		)
	}

	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}

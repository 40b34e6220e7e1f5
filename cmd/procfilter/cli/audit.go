package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkingovr/procfilter/api"
	"github.com/tkingovr/procfilter/internal/audit"
	"github.com/tkingovr/procfilter/internal/config"
)

var (
	auditFilter  string
	auditVerdict string
	auditSince   time.Duration
	auditLimit   int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect recorded filter invocations",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print matching audit records as JSON lines",
	Example: `  procfilter audit query --filter spamc --verdict drop --since 24h
  procfilter audit query --limit 20`,
	RunE: runAuditQuery,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print invocation counts by verdict and filter",
	RunE:  runAuditStats,
}

func init() {
	auditQueryCmd.Flags().StringVar(&auditFilter, "filter", "", "only records of this filter")
	auditQueryCmd.Flags().StringVar(&auditVerdict, "verdict", "", "only records with this verdict (keep|drop|error)")
	auditQueryCmd.Flags().DurationVar(&auditSince, "since", 0, "only records newer than this")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum number of records")
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAudit(cmd *cobra.Command) (*audit.JSONLStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Settings.AuditDir == "" {
		return nil, fmt.Errorf("%w: settings.audit_dir is not set", config.ErrInvalid)
	}
	return audit.NewJSONLStore(cfg.Settings.AuditDir)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	q := api.QueryFilter{
		Filter:  auditFilter,
		Verdict: api.Verdict(auditVerdict),
		Limit:   auditLimit,
	}
	if q.Verdict != "" && !q.Verdict.Valid() {
		return fmt.Errorf("unknown verdict %q", auditVerdict)
	}
	if auditSince > 0 {
		q.Since = time.Now().Add(-auditSince)
	}

	store, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	store, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

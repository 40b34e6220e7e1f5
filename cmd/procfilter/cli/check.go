package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tkingovr/procfilter/api"
	"github.com/tkingovr/procfilter/internal/filter"
	"github.com/tkingovr/procfilter/internal/policy"
	"github.com/tkingovr/procfilter/internal/runner"
)

var checkReq api.CheckRequest

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the outcome policy of a filter",
	Long: `Check what verdict a filter exit status would receive without running
the filter. Useful for testing exit code sets and outcome policies.`,
	Example: `  procfilter check -c procfilter.yaml --filter spamc --exit-code 1
  procfilter check -c procfilter.yaml --filter bogofilter --exit-code 0 --stderr "warning"`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkReq.Filter, "filter", "", "filter name to check")
	checkCmd.Flags().IntVar(&checkReq.ExitCode, "exit-code", 0, "exit status to classify")
	checkCmd.Flags().StringVar(&checkReq.Stderr, "stderr", "", "standard error output to classify")
	_ = checkCmd.MarkFlagRequired("filter")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fc, ok := cfg.Filter(checkReq.Filter)
	if !ok {
		return fmt.Errorf("unknown filter %q", checkReq.Filter)
	}
	f, err := filter.New(fc, filter.Deps{Runner: runner.NewRunner(logger, nil), Logger: logger})
	if err != nil {
		return err
	}

	resp, err := check(cmd.Context(), f.Options(), checkReq)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// check classifies the request the way a real run would, including the rule
// that an accepted run must not write to stderr.
func check(ctx context.Context, opts *filter.Options, req api.CheckRequest) (*api.CheckResponse, error) {
	res, err := opts.Engine.Evaluate(ctx, &policy.EvalInput{
		Filter:   opts.Name,
		ExitCode: req.ExitCode,
		Stderr:   req.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	resp := &api.CheckResponse{
		Filter:  opts.Name,
		Verdict: res.Verdict,
		Rule:    res.Rule,
		Message: res.Message,
	}
	if req.ExitCode == runner.ExitSetupFailure {
		resp.Verdict = api.VerdictError
		resp.Message = "exit status 127 is reserved for commands that could not be started"
	} else if resp.Verdict == api.VerdictKeep && req.Stderr != "" && !opts.IgnoreStderr {
		resp.Verdict = api.VerdictError
		resp.Rule = "stderr"
		resp.Message = "output on stderr without ignore_stderr"
	}
	return resp, nil
}

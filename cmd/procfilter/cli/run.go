package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkingovr/procfilter/internal/audit"
	"github.com/tkingovr/procfilter/internal/config"
	"github.com/tkingovr/procfilter/internal/filter"
	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/metrics"
	"github.com/tkingovr/procfilter/internal/runner"
)

var (
	runInput        string
	runSender       string
	runRecipient    string
	runReceivedFrom string
	runReceivedWith string
	runReceivedBy   string
	runFlags        []string
	runTempDir      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Pass one message through the configured filters",
	Long: `Read a message from --input or standard input, run it through every
configured filter in order, and write the result to standard output.

Exit status: 0 when the message is passed on, 99 when a filter dropped
it, 1 when a filter failed, 2 on a configuration or privilege error.`,
	Example: `  procfilter run -c procfilter.yaml -f alice@example.org -r bob-lists@example.com < msg.eml
  procfilter run -c procfilter.yaml --input msg.eml --received-from pop.example.org --received-with POP3`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "message file (default stdin)")
	runCmd.Flags().StringVarP(&runSender, "sender", "f", "", "envelope sender")
	runCmd.Flags().StringVarP(&runRecipient, "recipient", "r", "", "envelope recipient")
	runCmd.Flags().StringVar(&runReceivedFrom, "received-from", "", "host the message was retrieved from")
	runCmd.Flags().StringVar(&runReceivedWith, "received-with", "", "retrieval protocol")
	runCmd.Flags().StringVar(&runReceivedBy, "received-by", "", "local host name")
	runCmd.Flags().StringSliceVar(&runFlags, "flag", nil, "retrieval flag carried with the message (repeatable)")
	runCmd.Flags().StringVar(&runTempDir, "temp-dir", "", "directory for the filters' stream files")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := requireFilters(cfg); err != nil {
		return err
	}

	var recorders []filter.Recorder
	if cfg.Settings.AuditDir != "" {
		store, err := audit.NewJSONLStore(cfg.Settings.AuditDir)
		if err != nil {
			return err
		}
		defer store.Close()
		recorders = append(recorders, store)
	}
	if cfg.Settings.MetricsFile != "" {
		rec := metrics.New()
		recorders = append(recorders, rec)
		defer func() {
			if werr := rec.WriteTextfile(cfg.Settings.MetricsFile); werr != nil {
				logger.Warn("writing metrics failed", "error", werr)
			}
		}()
	}

	chain, err := buildChain(cfg, recorders...)
	if err != nil {
		return err
	}

	msg, err := readMessage()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("sender") {
		msg.SetSender(runSender)
	}
	msg.Recipient = runRecipient
	msg.Flags = runFlags

	prov := message.Provenance{
		ReceivedFrom: runReceivedFrom,
		ReceivedWith: runReceivedWith,
		ReceivedBy:   runReceivedBy,
	}
	out, err := chain.Process(cmd.Context(), msg, prov)
	if err != nil {
		return err
	}
	if out == nil {
		logger.Info("message dropped", "sender", runSender, "recipient", runRecipient)
		return errDropped
	}

	data, err := out.Flatten(message.FlattenOptions{LineEnding: message.LF})
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func buildChain(cfg *config.Config, recorders ...filter.Recorder) (*filter.Chain, error) {
	var opts []runner.Option
	if runTempDir != "" {
		opts = append(opts, runner.WithTempDir(runTempDir))
	}
	deps := filter.Deps{
		Runner: runner.NewRunner(logger, runner.OSPrivileges{}, opts...),
		Logger: logger,
	}
	return filter.BuildChain(cfg.Filters, deps, recorders...)
}

func readMessage() (*message.Message, error) {
	var r io.Reader = os.Stdin
	if runInput != "" && runInput != "-" {
		f, err := os.Open(runInput)
		if err != nil {
			return nil, fmt.Errorf("opening message: %w", err)
		}
		defer f.Close()
		r = f
	}
	msg, err := message.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	return msg, nil
}

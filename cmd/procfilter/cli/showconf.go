package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tkingovr/procfilter/internal/filter"
	"github.com/tkingovr/procfilter/internal/runner"
)

var showconfYAML bool

var showconfCmd = &cobra.Command{
	Use:   "showconf",
	Short: "Validate the configuration and print every filter",
	RunE:  runShowconf,
}

func init() {
	showconfCmd.Flags().BoolVar(&showconfYAML, "yaml", false, "print the parsed configuration as YAML")
	rootCmd.AddCommand(showconfCmd)
}

func runShowconf(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if showconfYAML {
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	deps := filter.Deps{Runner: runner.NewRunner(logger, nil), Logger: logger}
	for _, fc := range cfg.Filters {
		f, err := filter.New(fc, deps)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n  %s\n", f, f.ConfString())
	}
	return nil
}

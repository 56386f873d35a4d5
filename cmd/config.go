package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after every file, environment and flag layer has
been applied. API keys are redacted.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	for _, src := range manager.Sources() {
		fmt.Fprintf(w, "# source: %s\n", src)
	}
	fmt.Fprintln(w, manager.Get().String())
	return nil
}

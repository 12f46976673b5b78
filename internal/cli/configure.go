package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prismworks/prism/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file with placeholder credentials.
Edit the generated file to add API keys for the backends you use.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to: %s\n", loader.ConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "Add your API keys, then try: prism ask \"hello\"")
	return nil
}

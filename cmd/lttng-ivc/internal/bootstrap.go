package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lttng/lttng-ivc/internal/env"
	"github.com/lttng/lttng-ivc/internal/setup"
)

var bootstrapJobs int

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Pin every marker of config.yaml",
	Long: `Bootstrap mirrors every remote named in config.yaml, resolves each marker
to a full commit id and writes run_configuration.yaml.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().IntVarP(&bootstrapJobs, "jobs", "j", 0, "Number of remotes fetched at once (default: number of CPUs)")
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := env.ConfigFile()
	if err != nil {
		return err
	}
	runCfg, err := env.RunConfigFile()
	if err != nil {
		return err
	}
	remotes, err := env.GitRemoteDir()
	if err != nil {
		return err
	}
	table, err := setup.Run(cmd.Context(), setup.Options{
		ConfigFile:    cfg,
		RunConfigFile: runCfg,
		GitRemoteDir:  remotes,
		Jobs:          bootstrapJobs,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d markers pinned in %s\n", len(table), runCfg)
	return nil
}

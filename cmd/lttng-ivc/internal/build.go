package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build label...",
	Short: "Build projects and print their install paths",
	Long:  `Build returns the cached build of each label, building it and its dependencies first if needed.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	for _, label := range args {
		p, err := svc.GetOrBuild(cmd.Context(), label)
		if err != nil {
			return fmt.Errorf("failed to build %s: %w", label, err)
		}
		status := "installed"
		if p.Skip {
			status = "skipped"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", label, status, p.InstallPath)
	}
	return nil
}

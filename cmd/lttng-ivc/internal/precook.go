package internal

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lttng/lttng-ivc/internal/env"
)

var precookCmd = &cobra.Command{
	Use:   "precook [label...]",
	Short: "Build and cache pinned projects",
	Long: `Precook builds every label of run_configuration.yaml, or only the given
ones, and stores them in the project cache. Labels listed in
LTTNG_IVC_DEPRECATED are left out unless named explicitly.`,
	RunE: runPrecook,
}

func init() {
	rootCmd.AddCommand(precookCmd)
}

func runPrecook(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	labels := args
	if len(labels) == 0 {
		labels = precookLabels(svc.Labels(), env.Deprecated())
	}
	slog.Info("precooking", "labels", len(labels))
	return svc.Precook(cmd.Context(), labels)
}

// precookLabels drops the deprecated labels.
func precookLabels(labels []string, deprecated map[string]bool) []string {
	var out []string
	for _, l := range labels {
		if !deprecated[l] {
			out = append(out, l)
		}
	}
	return out
}

package internal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lttng/lttng-ivc/internal/cache"
	"github.com/lttng/lttng-ivc/internal/runtime"
)

var envCmd = &cobra.Command{
	Use:   "env label...",
	Short: "Print the runtime environment of projects",
	Long: `Env prints, as shell assignments, the environment commands run with once
the given projects are attached to a runtime, in that order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnv,
}

func init() {
	rootCmd.AddCommand(envCmd)
}

func runEnv(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "lttng-ivc-env-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	return runtime.With(dir, func(rt *runtime.Runtime) error {
		if err := attach(cmd, svc, rt, args); err != nil {
			return err
		}
		e, err := rt.Environment()
		if err != nil {
			return err
		}
		printEnv(cmd.OutOrStdout(), e)
		return nil
	})
}

// attach builds the labels and attaches them to rt, in order.
func attach(cmd *cobra.Command, svc *cache.Service, rt *runtime.Runtime, labels []string) error {
	for _, label := range labels {
		p, err := svc.GetOrBuild(cmd.Context(), label)
		if err != nil {
			return fmt.Errorf("failed to build %s: %w", label, err)
		}
		if err := rt.AddProject(p); err != nil {
			return err
		}
	}
	return nil
}

func printEnv(w io.Writer, e map[string]string) {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "export %s=%s\n", k, shellQuote(e[k]))
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

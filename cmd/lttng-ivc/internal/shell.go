package internal

import (
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lttng/lttng-ivc/internal/autotools"
	"github.com/lttng/lttng-ivc/internal/env"
	"github.com/lttng/lttng-ivc/internal/runtime"
)

var shellCmd = &cobra.Command{
	Use:   "shell label...",
	Short: "Start a shell inside a runtime",
	Long: `Shell attaches the given projects to a fresh runtime and starts $SHELL in
it. The runtime is closed, and its home saved, when the shell exits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	work, err := env.WorkDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(work, "shell", time.Now().Format("20060102-150405"))

	return runtime.With(dir, func(rt *runtime.Runtime) error {
		if err := attach(cmd, svc, rt, args); err != nil {
			return err
		}
		e, err := rt.Environment()
		if err != nil {
			return err
		}
		sh := os.Getenv("SHELL")
		if sh == "" {
			sh = "/bin/sh"
		}
		c := exec.CommandContext(cmd.Context(), sh)
		c.Dir = rt.Home()
		c.Env = autotools.Environ(e)
		c.Stdin = os.Stdin
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()
		return c.Run()
	})
}

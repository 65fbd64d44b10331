package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lttng/lttng-ivc/internal/cache"
	"github.com/lttng/lttng-ivc/internal/config"
	"github.com/lttng/lttng-ivc/internal/env"
)

var (
	rootVerbose bool
	rootWorkDir string
	logFile     *os.File
)

var rootCmd = &cobra.Command{
	Use:   "lttng-ivc",
	Short: "lttng-ivc drives LTTng inter-version compatibility testing",
	Long: `lttng-ivc pins the LTTng projects listed in config.yaml, builds and caches
every pinned version, and gives access to the resulting environments.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Log debug messages to the console")
	rootCmd.PersistentFlags().StringVar(&rootWorkDir, "workdir", "", "Workspace root (overrides LTTNG_IVC_WORKDIR)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging logs to the console and, at debug level, to debug.log in the
// workspace.
func setupLogging(cmd *cobra.Command, args []string) error {
	if rootWorkDir != "" {
		if err := os.Setenv("LTTNG_IVC_WORKDIR", rootWorkDir); err != nil {
			return err
		}
	}
	level := slog.LevelInfo
	if rootVerbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var console slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		console = slog.NewTextHandler(os.Stderr, opts)
	} else {
		console = slog.NewJSONHandler(os.Stderr, opts)
	}

	dir, err := env.WorkDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	logFile, err = os.Create(filepath.Join(dir, "debug.log"))
	if err != nil {
		return err
	}
	debug := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(teeHandler{console, debug}))
	return nil
}

// teeHandler sends each record to every handler enabled for its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// loadTable reads the label table written by bootstrap.
func loadTable() (config.Table, error) {
	path, err := env.RunConfigFile()
	if err != nil {
		return nil, err
	}
	table, err := config.LoadTable(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not found, run 'lttng-ivc bootstrap' first", path)
	}
	return table, err
}

// newService opens the project cache of the workspace.
func newService() (*cache.Service, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	root, err := env.CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.New(cache.Options{Table: table, Root: root})
}

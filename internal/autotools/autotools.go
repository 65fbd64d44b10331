// Package autotools drives the bootstrap/configure/make/make-install workflow
// of a source tree, capturing the output of every step in per-step log files.
package autotools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Tools names the native executables used by the build steps.
type Tools struct {
	Bootstrap string
	Configure string
	Make      string
	Depmod    string
	Chrpath   string
}

// DefaultTools returns the tools found in a regular autotools source tree and
// on a regular host.
func DefaultTools() Tools {
	return Tools{
		Bootstrap: "./bootstrap",
		Configure: "./configure",
		Make:      "make",
		Depmod:    "depmod",
		Chrpath:   "chrpath",
	}
}

// withDefaults fills the unset tools.
func (t Tools) withDefaults() Tools {
	d := DefaultTools()
	if t.Bootstrap == "" {
		t.Bootstrap = d.Bootstrap
	}
	if t.Configure == "" {
		t.Configure = d.Configure
	}
	if t.Make == "" {
		t.Make = d.Make
	}
	if t.Depmod == "" {
		t.Depmod = d.Depmod
	}
	if t.Chrpath == "" {
		t.Chrpath = d.Chrpath
	}
	return t
}

// AutoTools drives Autotools-style builds of one source tree.
type AutoTools struct {
	tools      Tools
	sourceDir  string
	installDir string
	logDir     string
	env        map[string]string
}

// New returns a ready-to-use AutoTools. Commands run in sourceDir, install
// into installDir and log into logDir.
func New(tools Tools, sourceDir, installDir, logDir string) *AutoTools {
	return &AutoTools{
		tools:      tools.withDefaults(),
		sourceDir:  sourceDir,
		installDir: installDir,
		logDir:     logDir,
	}
}

// Tools returns the executables in use.
func (a *AutoTools) Tools() Tools { return a.tools }

// SetEnv replaces the environment of every command spawned later. A nil map
// means the process environment is inherited.
func (a *AutoTools) SetEnv(env map[string]string) { a.env = env }

// Bootstrap runs the bootstrap script of the source tree.
func (a *AutoTools) Bootstrap(ctx context.Context) error {
	return a.Run(ctx, "bootstrap", a.tools.Bootstrap)
}

// Configure runs the configure script with --prefix pointing at the
// installation directory. Extra flags are appended after --prefix.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	flags := append([]string{"--prefix=" + a.installDir}, args...)
	return a.Run(ctx, "configure", a.tools.Configure, flags...)
}

// Build runs "make -j jobs V=1" with optional extra arguments.
func (a *AutoTools) Build(ctx context.Context, jobs int, args ...string) error {
	if jobs < 1 {
		jobs = 1
	}
	flags := append([]string{"-j", strconv.Itoa(jobs), "V=1"}, args...)
	return a.Run(ctx, "build", a.tools.Make, flags...)
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	return a.Run(ctx, "install", a.tools.Make, append([]string{"install"}, args...)...)
}

// ModulesInstall installs kernel modules below the installation directory and
// regenerates the module dependency index of that tree only.
func (a *AutoTools) ModulesInstall(ctx context.Context) error {
	if err := a.Run(ctx, "install", a.tools.Make, "INSTALL_MOD_PATH="+a.installDir, "modules_install"); err != nil {
		return err
	}
	return a.Run(ctx, "depmod", a.tools.Depmod, "-b", a.installDir)
}

// Run executes name with args in the source directory. Standard output and
// error are written to <logDir>/<step>.out and <logDir>/<step>.err, which
// are truncated first.
func (a *AutoTools) Run(ctx context.Context, step, name string, args ...string) error {
	return a.run(ctx, step, os.O_TRUNC, name, args...)
}

// Append is like Run but appends to the step's log files, for steps made of
// many commands.
func (a *AutoTools) Append(ctx context.Context, step, name string, args ...string) error {
	return a.run(ctx, step, os.O_APPEND, name, args...)
}

func (a *AutoTools) run(ctx context.Context, step string, mode int, name string, args ...string) error {
	if err := os.MkdirAll(a.logDir, 0o755); err != nil {
		return err
	}
	stdout, err := os.OpenFile(a.LogFile(step, "out"), os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(a.LogFile(step, "err"), os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	defer stderr.Close()

	if mode == os.O_APPEND {
		fmt.Fprintf(stdout, "Running %s\n", strings.Join(append([]string{name}, args...), " "))
		fmt.Fprintf(stderr, "Running %s\n", strings.Join(append([]string{name}, args...), " "))
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = a.sourceDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if a.env != nil {
		cmd.Env = Environ(a.env)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(append([]string{name}, args...), " "), err)
	}
	return nil
}

// LogFile returns the path of a step log; ext is "out", "err" or "env".
func (a *AutoTools) LogFile(step, ext string) string {
	return filepath.Join(a.logDir, step+"."+ext)
}

// WriteEnv records env in <logDir>/<step>.env, one KEY=VALUE per line.
func (a *AutoTools) WriteEnv(step string, env map[string]string) error {
	if err := os.MkdirAll(a.logDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(a.LogFile(step, "env"), []byte(strings.Join(Environ(env), "\n")+"\n"), 0o644)
}

// Environ converts env into the sorted KEY=VALUE form used by exec.Cmd.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

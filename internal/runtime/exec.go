package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/lttng/lttng-ivc/internal/autotools"
)

// Handle identifies a spawned process: the base name of its executable and a
// UUID.
type Handle string

// Result describes a finished command.
type Result struct {
	Args     []string
	Pid      int
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r *Result) failure() *CommandFailedError {
	return &CommandFailedError{Args: r.Args, ExitCode: r.ExitCode, Stdout: r.Stdout, Stderr: r.Stderr}
}

type cmdConfig struct {
	dir       string
	timeout   time.Duration
	noCheck   bool
	env       map[string]string
	ldPreload []string
	classPath []string
	ldDebug   bool
}

// CmdOption configures Run and Spawn. Timeout and NoCheck only apply to Run.
type CmdOption func(*cmdConfig)

// Dir sets the working directory of the command.
func Dir(dir string) CmdOption {
	return func(c *cmdConfig) { c.dir = dir }
}

// Timeout kills the command after d.
func Timeout(d time.Duration) CmdOption {
	return func(c *cmdConfig) { c.timeout = d }
}

// NoCheck accepts a nonzero exit status.
func NoCheck() CmdOption {
	return func(c *cmdConfig) { c.noCheck = true }
}

// Env sets a variable for this command only.
func Env(key, value string) CmdOption {
	return func(c *cmdConfig) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// LDPreload preloads libs in the command.
func LDPreload(libs ...string) CmdOption {
	return func(c *cmdConfig) { c.ldPreload = append(c.ldPreload, libs...) }
}

// ClassPath replaces the Java class path of the command.
func ClassPath(paths ...string) CmdOption {
	return func(c *cmdConfig) { c.classPath = append(c.classPath, paths...) }
}

// LDDebug turns on every dynamic loader debug output.
func LDDebug() CmdOption {
	return func(c *cmdConfig) { c.ldDebug = true }
}

func (r *Runtime) prepare(command string, opts []CmdOption) ([]string, map[string]string, *cmdConfig, error) {
	var c cmdConfig
	for _, opt := range opts {
		opt(&c)
	}
	args, err := shlex.Split(command)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, nil, nil, ErrEmptyCommand
	}
	if _, err := os.Stat(r.home); err != nil {
		return nil, nil, nil, fmt.Errorf("runtime home: %w", err)
	}
	e, err := r.environment()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(c.ldPreload) > 0 {
		e["LD_PRELOAD"] = strings.Join(c.ldPreload, ":")
	}
	if len(c.classPath) > 0 {
		e["CLASSPATH"] = strings.Join(c.classPath, ":")
	}
	if c.ldDebug {
		e["LD_DEBUG"] = "all"
	}
	for k, v := range c.env {
		e[k] = v
	}
	return args, e, &c, nil
}

func (r *Runtime) command(args []string, e map[string]string, c *cmdConfig) *exec.Cmd {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = c.dir
	cmd.Env = autotools.Environ(e)
	// Own process group, so a kill reaches every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func killGroup(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

// signalGroup sends sig to the process group led by pid. A group with no
// member left is not an error.
func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func createLogs(base string) (stdout, stderr *os.File, err error) {
	stdout, err = os.Create(base + ".out")
	if err != nil {
		return nil, nil, err
	}
	stderr, err = os.Create(base + ".err")
	if err != nil {
		stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// Run runs command to completion. command is split like a POSIX shell would,
// without expansion. Output goes to <n>.out and <n>.err in the log
// directory, n counting the commands run. A nonzero exit status fails with a
// *CommandFailedError unless NoCheck is given; a command outliving its
// Timeout is killed and fails with a *TimeoutError.
func (r *Runtime) Run(ctx context.Context, command string, opts ...CmdOption) (*Result, error) {
	r.mu.Lock()
	// Close hooks still run commands.
	if r.state == closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	args, e, c, err := r.prepare(command, opts)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	id := r.runs
	r.runs++
	if r.state < active {
		r.state = active
	}
	r.mu.Unlock()

	base := filepath.Join(r.logDir, strconv.Itoa(id))
	if err := appendFile(filepath.Join(r.logDir, "cmd.map"), fmt.Sprintf("%d: %q\n", id, args)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(base+".env", []byte(strings.Join(autotools.Environ(e), "\n")+"\n"), 0o644); err != nil {
		return nil, err
	}
	stdout, stderr, err := createLogs(base)
	if err != nil {
		return nil, err
	}
	res := &Result{Args: args, Stdout: stdout.Name(), Stderr: stderr.Name()}

	cmd := r.command(args, e, c)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	res.Pid = cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}
	var waitErr, runErr error
	select {
	case waitErr = <-done:
	case <-expired:
		killGroup(res.Pid)
		waitErr = <-done
		runErr = &TimeoutError{Args: args, Timeout: c.timeout}
	case <-ctx.Done():
		killGroup(res.Pid)
		waitErr = <-done
		runErr = ctx.Err()
	}
	stdout.Close()
	stderr.Close()
	res.ExitCode = cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && runErr == nil {
		runErr = waitErr
	}
	r.logger.Debug("command done", "n", id, "args", args, "status", res.ExitCode, "stdout", res.Stdout, "stderr", res.Stderr)
	if err := r.aggregate(id, command, res); err != nil {
		r.logger.Warn("writing runtime.log", "error", err)
	}
	if runErr != nil {
		return res, runErr
	}
	if res.ExitCode != 0 && !c.noCheck {
		return res, res.failure()
	}
	return res, nil
}

// aggregate appends the command and its output to runtime.log.
func (r *Runtime) aggregate(id int, command string, res *Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Command #%d\nReturn value: %d\nCommand: %s\n", id, res.ExitCode, command)
	for _, part := range []struct{ title, path string }{{"STDOUT", res.Stdout}, {"STDERR", res.Stderr}} {
		data, err := os.ReadFile(part.path)
		if err != nil {
			return err
		}
		b.WriteString(part.title + ":\n")
		b.WriteString(indent(string(data), "    "))
	}
	b.WriteString("\n")
	return appendFile(filepath.Join(r.logDir, "runtime.log"), b.String())
}

func indent(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "")
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type process struct {
	handle Handle
	args   []string
	cmd    *exec.Cmd
	stdout string
	stderr string
	done   chan struct{}
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *process) result() *Result {
	return &Result{
		Args:     p.args,
		Pid:      p.cmd.Process.Pid,
		ExitCode: p.cmd.ProcessState.ExitCode(),
		Stdout:   p.stdout,
		Stderr:   p.stderr,
	}
}

// Spawn starts command in the background, in its own process group. Output
// goes to <handle>.out and <handle>.err in the subprocess log directory. The
// process is terminated by Close if still running. ctx only bounds the start:
// a cancelled ctx starts nothing, and cancelling it later does not stop the
// process.
func (r *Runtime) Spawn(ctx context.Context, command string, opts ...CmdOption) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return "", err
	}
	args, e, c, err := r.prepare(command, opts)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	h := Handle(filepath.Base(args[0]) + "-" + id.String())
	base := filepath.Join(r.subDir, string(h))

	if err := os.WriteFile(base+".env", []byte(strings.Join(autotools.Environ(e), "\n")+"\n"), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(base+".cmdline", []byte(fmt.Sprintf("%q\n", args)), 0o644); err != nil {
		return "", err
	}
	stdout, stderr, err := createLogs(base)
	if err != nil {
		return "", err
	}

	cmd := r.command(args, e, c)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return "", fmt.Errorf("start %s: %w", args[0], err)
	}
	p := &process{
		handle: h,
		args:   args,
		cmd:    cmd,
		stdout: stdout.Name(),
		stderr: stderr.Name(),
		done:   make(chan struct{}),
	}
	go func() {
		// The exit status is read from cmd.ProcessState.
		cmd.Wait()
		stdout.Close()
		stderr.Close()
		close(p.done)
	}()

	r.procs[h] = p
	r.order = append(r.order, h)
	r.state = active
	r.logger.Debug("spawned", "handle", h, "pid", cmd.Process.Pid, "args", args, "stdout", p.stdout, "stderr", p.stderr)
	return h, nil
}

func (r *Runtime) lookup(h Handle, allowClosing bool) (*process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == closed || (r.state == closing && !allowClosing) {
		return nil, ErrClosed
	}
	p, ok := r.procs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return p, nil
}

// Pid returns the process id of h.
func (r *Runtime) Pid(h Handle) (int, error) {
	p, err := r.lookup(h, false)
	if err != nil {
		return 0, err
	}
	return p.cmd.Process.Pid, nil
}

// StdoutPath returns the file receiving the standard output of h.
func (r *Runtime) StdoutPath(h Handle) (string, error) {
	p, err := r.lookup(h, false)
	if err != nil {
		return "", err
	}
	return p.stdout, nil
}

// StderrPath returns the file receiving the standard error of h.
func (r *Runtime) StderrPath(h Handle) (string, error) {
	p, err := r.lookup(h, false)
	if err != nil {
		return "", err
	}
	return p.stderr, nil
}

// Signal sends sig to the process h.
func (r *Runtime) Signal(h Handle, sig os.Signal) error {
	p, err := r.lookup(h, false)
	if err != nil {
		return err
	}
	if p.exited() {
		return fmt.Errorf("%s: %w", h, os.ErrProcessDone)
	}
	return p.cmd.Process.Signal(sig)
}

// Terminate asks the process group of h to exit with SIGTERM and waits up
// to timeout for h, then kills the group. Group members outliving h are
// killed too. With check, a nonzero exit status fails with
// a *CommandFailedError.
func (r *Runtime) Terminate(h Handle, timeout time.Duration, check bool) (*Result, error) {
	if _, err := r.lookup(h, false); err != nil {
		return nil, err
	}
	res, err := r.terminate(h, timeout)
	if err != nil {
		return nil, err
	}
	if check && res.ExitCode != 0 {
		return res, res.failure()
	}
	return res, nil
}

func (r *Runtime) terminate(h Handle, timeout time.Duration) (*Result, error) {
	p, err := r.lookup(h, true)
	if err != nil {
		return nil, err
	}
	if p.exited() {
		return r.sweep(p)
	}
	if err := signalGroup(p.cmd.Process.Pid, unix.SIGTERM); err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return r.sweep(p)
	case <-timer.C:
		r.logger.Warn("process did not terminate, killing it", "handle", h, "timeout", timeout)
		return r.kill(p)
	}
}

// Kill kills the whole process group of h and waits for it.
func (r *Runtime) Kill(h Handle) (*Result, error) {
	p, err := r.lookup(h, false)
	if err != nil {
		return nil, err
	}
	return r.kill(p)
}

// sweep kills what is left of the process group of the exited process p.
func (r *Runtime) sweep(p *process) (*Result, error) {
	if err := killGroup(p.cmd.Process.Pid); err != nil {
		return nil, err
	}
	return p.result(), nil
}

func (r *Runtime) kill(p *process) (*Result, error) {
	if err := killGroup(p.cmd.Process.Pid); err != nil {
		return nil, err
	}
	<-p.done
	return p.result(), nil
}

// Wait waits for h to exit. With check, a nonzero exit status fails with a
// *CommandFailedError.
func (r *Runtime) Wait(ctx context.Context, h Handle, check bool) (*Result, error) {
	p, err := r.lookup(h, false)
	if err != nil {
		return nil, err
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := p.result()
	if check && res.ExitCode != 0 {
		return res, res.failure()
	}
	return res, nil
}

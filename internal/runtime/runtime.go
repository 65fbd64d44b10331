// Package runtime provides the sandbox tests run LTTng binaries in: a private
// LTTNG_HOME, an environment composed from the attached projects, and a
// table of the processes started, all torn down by Close.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	qerrors "github.com/qiniu/x/errors"

	"github.com/lttng/lttng-ivc/internal/env"
	"github.com/lttng/lttng-ivc/internal/project"
)

// maxHomeLen bounds the home directory path so that the sockets created
// below it fit in sockaddr_un.
const maxHomeLen = 88

// closeTimeout is the grace period given to each process on Close before
// it is killed.
const closeTimeout = 60 * time.Second

// DefaultSpecialEnv returns the variables every runtime defines.
func DefaultSpecialEnv() map[string]string {
	return map[string]string{
		"LTTNG_UST_DEBUG":              "1",
		"LTTNG_APP_SOCKET_TIMEOUT":     "-1",
		"LTTNG_NETWORK_SOCKET_TIMEOUT": "-1",
		"LTTNG_SESSIOND_PATH":          "/bin/true",
	}
}

type lifecycle int

const (
	created lifecycle = iota
	populated
	active
	closing
	closed
)

type options struct {
	logger     *slog.Logger
	special    map[string]string
	homePrefix string
	ignore     []string
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSpecialEnv adds variables to the runtime special environment.
func WithSpecialEnv(vars map[string]string) Option {
	return func(o *options) { maps.Copy(o.special, vars) }
}

// WithHomePrefix sets the name prefix of the temporary home directory.
func WithHomePrefix(prefix string) Option {
	return func(o *options) { o.homePrefix = prefix }
}

// WithPostMortemIgnore sets the file names left out of the home copy made by
// Close. The default is ".lttng", which only holds sockets and pipes.
func WithPostMortemIgnore(names ...string) Option {
	return func(o *options) { o.ignore = names }
}

// Runtime is a sandbox for running LTTng binaries. It must be closed.
type Runtime struct {
	dir     string
	logDir  string
	subDir  string
	home    string
	special map[string]string
	ignore  []string
	logger  *slog.Logger

	mu       sync.Mutex
	state    lifecycle
	projects []*project.Project
	procs    map[Handle]*process
	order    []Handle
	runs     int
	hooks    []func(context.Context) error
}

// New creates a runtime logging into dir, which must not exist yet or be
// empty of logs.
func New(dir string, opts ...Option) (*Runtime, error) {
	o := options{
		special:    DefaultSpecialEnv(),
		homePrefix: env.TmpPrefix(),
		ignore:     []string{".lttng"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		dir:     dir,
		logDir:  filepath.Join(dir, "log"),
		subDir:  filepath.Join(dir, "log", "subprocess"),
		special: o.special,
		ignore:  o.ignore,
		logger:  o.logger.With("component", "runtime"),
		procs:   make(map[Handle]*process),
	}
	if err := os.MkdirAll(r.subDir, 0o755); err != nil {
		return nil, err
	}
	r.home, err = os.MkdirTemp("", o.homePrefix)
	if err != nil {
		return nil, err
	}
	if len(r.home) > maxHomeLen {
		os.RemoveAll(r.home)
		return nil, fmt.Errorf("%w: %s", ErrHomeTooLong, r.home)
	}
	r.logger.Debug("runtime created", "dir", dir, "home", r.home)
	return r, nil
}

// With creates a runtime, passes it to fn and closes it whatever fn returns.
func With(dir string, fn func(*Runtime) error, opts ...Option) error {
	r, err := New(dir, opts...)
	if err != nil {
		return err
	}
	fnErr := fn(r)
	return errors.Join(fnErr, r.Close())
}

// Dir returns the runtime directory.
func (r *Runtime) Dir() string { return r.dir }

// LogDir returns the directory holding command logs.
func (r *Runtime) LogDir() string { return r.logDir }

// Home returns the directory used as LTTNG_HOME.
func (r *Runtime) Home() string { return r.home }

// usable checks that the runtime is not closed, under r.mu.
func (r *Runtime) usable() error {
	if r.state >= closing {
		return ErrClosed
	}
	return nil
}

// AddProject attaches p: its binaries, libraries and special variables
// become part of the environment. Projects attached first come first in the
// search paths.
func (r *Runtime) AddProject(p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return err
	}
	if slices.Contains(r.projects, p) {
		return fmt.Errorf("project %s is already attached", p.Label)
	}
	if _, err := r.specials(append(slices.Clone(r.projects), p)); err != nil {
		return err
	}
	r.projects = append(r.projects, p)
	if r.state == created {
		r.state = populated
	}
	return nil
}

// RemoveProject detaches p.
func (r *Runtime) RemoveProject(p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return err
	}
	i := slices.Index(r.projects, p)
	if i < 0 {
		return fmt.Errorf("project %s is not attached", p.Label)
	}
	r.projects = slices.Delete(r.projects, i, i+1)
	return nil
}

// Projects returns the attached projects.
func (r *Runtime) Projects() []*project.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.projects)
}

func (r *Runtime) specials(projects []*project.Project) (*project.SpecialSet, error) {
	s := project.NewSpecialSet()
	if err := s.Add("runtime", r.special); err != nil {
		return nil, err
	}
	for _, p := range projects {
		if err := p.AddSpecials(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Environment returns the environment of the commands run by the runtime.
func (r *Runtime) Environment() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.environment()
}

func (r *Runtime) environment() (map[string]string, error) {
	specials, err := r.specials(r.projects)
	if err != nil {
		return nil, err
	}
	e := project.OSEnv()
	e["LTTNG_HOME"] = r.home
	e["LD_BIND_NOW"] = "enabled"
	for i := len(r.projects) - 1; i >= 0; i-- {
		p := r.projects[i]
		project.Layer(e, "CPPFLAGS", p.CompileFlags())
		project.Layer(e, "LDFLAGS", p.LinkFlags())
		project.Layer(e, "LD_LIBRARY_PATH", p.LibraryPath())
		project.Layer(e, "PATH", p.BinPath())
	}
	specials.Apply(e)
	return e, nil
}

// OnClose registers fn to run during Close, after every process is gone.
// Hooks run in reverse registration order; their errors are logged only.
func (r *Runtime) OnClose(fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return err
	}
	r.hooks = append(r.hooks, fn)
	return nil
}

// Close terminates every process still running, runs the close hooks and
// keeps a copy of the home directory in <dir>/lttng_home. Every process that
// did not exit cleanly is reported in the returned *CloseError. Closing twice
// is a no-op.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.state >= closing {
		r.mu.Unlock()
		return nil
	}
	r.state = closing
	order := slices.Clone(r.order)
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	var errs qerrors.List
	for _, h := range order {
		res, err := r.terminate(h, closeTimeout)
		if err != nil {
			errs.Add(err)
			continue
		}
		if res.ExitCode != 0 {
			r.logger.Error("process terminated with an error", "handle", h, "status", res.ExitCode)
			errs.Add(res.failure())
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](context.Background()); err != nil {
			r.logger.Warn("close hook failed", "error", err)
		}
	}

	if err := copyTree(r.home, filepath.Join(r.dir, "lttng_home"), r.ignore); err != nil {
		errs.Add(fmt.Errorf("saving home directory: %w", err))
	}
	if err := os.RemoveAll(r.home); err != nil {
		r.logger.Warn("removing home directory", "home", r.home, "error", err)
	}

	r.mu.Lock()
	r.state = closed
	r.mu.Unlock()

	if len(errs) > 0 {
		return &CloseError{Errors: errs}
	}
	return nil
}

// Package project builds one pinned version of an LTTng component (or one of
// its dependencies) from sources: checkout, bootstrap, configure, build,
// install, with the environment needed to build against it and run it.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/lttng/lttng-ivc/internal/autotools"
	"github.com/lttng/lttng-ivc/internal/vcs"
)

// DefaultSchemaCandidates lists the machine interface schema files looked up
// in a control daemon source tree.
var DefaultSchemaCandidates = []string{
	"mi-lttng-4.1.xsd",
	"mi-lttng-4.0.xsd",
	"mi-lttng-3.0.xsd",
	"mi_lttng.xsd",
}

type options struct {
	tools      autotools.Tools
	vcs        vcs.VCS
	logger     *slog.Logger
	candidates []string
	jobs       int
}

// Option configures a Project.
type Option func(*options)

// WithTools sets the native executables used by the build steps.
func WithTools(tools autotools.Tools) Option {
	return func(o *options) { o.tools = tools }
}

// WithVCS sets the version control backend used by Checkout.
func WithVCS(v vcs.VCS) Option {
	return func(o *options) { o.vcs = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSchemaCandidates overrides DefaultSchemaCandidates.
func WithSchemaCandidates(names []string) Option {
	return func(o *options) { o.candidates = names }
}

// WithJobs sets the make parallelism. The default is the CPU affinity count
// of the process.
func WithJobs(n int) Option {
	return func(o *options) { o.jobs = n }
}

func newOptions(opts []Option) options {
	o := options{candidates: DefaultSchemaCandidates}
	for _, opt := range opts {
		opt(&o)
	}
	if o.vcs == nil {
		o.vcs = vcs.NewGitVCS()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.jobs < 1 {
		o.jobs = autotools.Jobs()
	}
	return o
}

// Project is an Artifact bound to a working directory, with its build state
// and resolved dependencies.
type Project struct {
	Artifact

	BaseDir     string
	SourcePath  string
	InstallPath string
	LogPath     string

	// BuildFlags are passed to configure.
	BuildFlags []string

	// SchemaPath is the machine interface schema of a control daemon, set
	// after checkout.
	SchemaPath string

	// Skip is set when a kernel module set failed to build. Tests needing
	// it must be skipped, not failed.
	Skip bool

	// LogicDigest and InstallDigest fingerprint a cached project: the build
	// logic that produced it and its installed tree. They are set by the
	// cache.
	LogicDigest   string
	InstallDigest string

	state     State
	immutable bool
	deps      []*Project
	special   map[string]string
	opts      options
	logger    *slog.Logger
}

// New binds a to baseDir. A pre-existing baseDir is wiped. Nothing is built.
func New(a Artifact, baseDir string, opts ...Option) (*Project, error) {
	p := newProject(a, baseDir, newOptions(opts))
	if err := os.RemoveAll(baseDir); err != nil {
		return nil, err
	}
	for _, dir := range []string{
		p.LogPath,
		p.SourcePath,
		filepath.Join(p.InstallPath, "include"),
		filepath.Join(p.InstallPath, "lib"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	if _, err := exec.LookPath("ccache"); err == nil {
		p.BuildFlags = append(p.BuildFlags, "CC=ccache gcc", "CXX=ccache g++")
	}
	p.BuildFlags = append(p.BuildFlags, "CFLAGS=-g -O0")

	if err := p.initKind(); err != nil {
		return nil, err
	}
	return p, nil
}

func newProject(a Artifact, baseDir string, o options) *Project {
	return &Project{
		Artifact:    a,
		BaseDir:     baseDir,
		SourcePath:  filepath.Join(baseDir, "source"),
		InstallPath: filepath.Join(baseDir, "install"),
		LogPath:     filepath.Join(baseDir, "log"),
		special:     make(map[string]string),
		opts:        o,
		logger:      o.logger.With("component", "project", "label", a.Label),
	}
}

// State returns the lifecycle state.
func (p *Project) State() State { return p.state }

// Immutable reports whether the project was frozen by the cache.
func (p *Project) Immutable() bool { return p.immutable }

// MarkImmutable freezes the project: every later mutation fails with
// ErrImmutable.
func (p *Project) MarkImmutable() { p.immutable = true }

// Dependencies returns the dependency projects in insertion order.
func (p *Project) Dependencies() []*Project {
	return append([]*Project(nil), p.deps...)
}

// AddDependency records dep as a dependency of p.
func (p *Project) AddDependency(dep *Project) error {
	if p.immutable {
		return &ImmutableError{Label: p.Label, Op: "dependency addition"}
	}
	if dep == p {
		return fmt.Errorf("%s: project cannot depend on itself", p.Label)
	}
	for _, d := range p.deps {
		if d.Label == dep.Label {
			return fmt.Errorf("%s: dependency %s already added", p.Label, dep.Label)
		}
	}
	p.deps = append(p.deps, dep)
	return nil
}

func (p *Project) tools() *autotools.AutoTools {
	return autotools.New(p.opts.tools, p.SourcePath, p.InstallPath, p.LogPath)
}

// require checks that op may run from the current state.
func (p *Project) require(op string, want State) error {
	if p.immutable {
		return &ImmutableError{Label: p.Label, Op: op}
	}
	if p.state != want {
		return &StateError{Label: p.Label, Op: op, State: p.state, Want: want}
	}
	return nil
}

func (p *Project) stepError(step string, err error) error {
	return &BuildStepError{Label: p.Label, Step: step, LogPath: p.LogPath, Err: err}
}

// Checkout materializes the sources at the pinned revision.
func (p *Project) Checkout(ctx context.Context) error {
	if err := p.require("checkout", StateUninitialized); err != nil {
		return err
	}
	checkoutErr := func(err error) error {
		return &CheckoutError{Label: p.Label, Source: p.Source, Revision: p.Revision, Err: err}
	}
	v := p.opts.vcs
	if err := v.Clone(ctx, p.Source, p.SourcePath); err != nil {
		return checkoutErr(err)
	}
	if err := v.Checkout(ctx, p.SourcePath, p.Revision); err != nil {
		return checkoutErr(err)
	}
	head, err := v.Head(ctx, p.SourcePath)
	if err != nil {
		return checkoutErr(err)
	}
	if len(p.Revision) == len(head) && head != p.Revision {
		return checkoutErr(fmt.Errorf("HEAD is %s", head))
	}
	if err := p.afterCheckout(); err != nil {
		return err
	}
	p.state = StateCheckedOut
	return nil
}

// Bootstrap runs the bootstrap script of the source tree.
func (p *Project) Bootstrap(ctx context.Context) error {
	if err := p.require("bootstrap", StateCheckedOut); err != nil {
		return err
	}
	if p.Kind != KindKernelModules {
		if err := p.tools().Bootstrap(ctx); err != nil {
			return p.stepError("bootstrap", err)
		}
	}
	p.state = StateBootstrapped
	return nil
}

// Configure runs configure with the project build flags, in an environment
// pointing at every dependency. All dependencies must be installed.
func (p *Project) Configure(ctx context.Context) error {
	if err := p.require("configure", StateBootstrapped); err != nil {
		return err
	}
	for _, dep := range p.deps {
		if dep.state != StateInstalled {
			return &DependencyNotReadyError{Label: p.Label, Dependency: dep.Label, State: dep.state}
		}
	}
	if p.Kind != KindKernelModules {
		env, err := p.Environment()
		if err != nil {
			return err
		}
		a := p.tools()
		if err := a.WriteEnv("configure", env); err != nil {
			return err
		}
		a.SetEnv(env)
		if err := a.Configure(ctx, p.BuildFlags...); err != nil {
			return p.stepError("configure", err)
		}
	}
	p.state = StateConfigured
	return nil
}

// Build runs make with one job per usable CPU.
func (p *Project) Build(ctx context.Context) error {
	if err := p.require("build", StateConfigured); err != nil {
		return err
	}
	env, err := p.Environment()
	if err != nil {
		return err
	}
	a := p.tools()
	a.SetEnv(env)
	if err := a.Build(ctx, p.opts.jobs); err != nil {
		return p.stepError("build", err)
	}
	p.state = StateBuilt
	return nil
}

// Install installs the build into InstallPath.
func (p *Project) Install(ctx context.Context) error {
	if err := p.require("install", StateBuilt); err != nil {
		return err
	}
	env, err := p.Environment()
	if err != nil {
		return err
	}
	a := p.tools()
	a.SetEnv(env)
	if p.Kind == KindKernelModules {
		err = a.ModulesInstall(ctx)
	} else {
		err = a.Install(ctx)
	}
	if err != nil {
		return p.stepError("install", err)
	}
	if err := p.afterInstall(); err != nil {
		return err
	}
	p.state = StateInstalled
	return nil
}

// PostInstall strips the run-time search paths of the installed binaries so
// that only the environment decides which libraries get loaded.
func (p *Project) PostInstall(ctx context.Context) error {
	if err := p.require("post-install", StateInstalled); err != nil {
		return err
	}
	if p.Kind == KindKernelModules {
		return nil
	}
	return p.stripRpath(ctx)
}

// Autobuild brings the project and its dependencies to the installed state.
// A kernel module set that fails to build is marked Skip instead.
func (p *Project) Autobuild(ctx context.Context) error {
	err := p.autobuild(ctx)
	if err != nil && p.Kind == KindKernelModules {
		var stepErr *BuildStepError
		if errors.As(err, &stepErr) && stepErr.Label == p.Label {
			p.logger.Warn("kernel modules failed to build, marked as skipped", "step", stepErr.Step, "log", stepErr.LogPath, "error", stepErr.Err)
			p.Skip = true
			return nil
		}
	}
	return err
}

func (p *Project) autobuild(ctx context.Context) error {
	if p.state == StateInstalled {
		return nil
	}
	if p.immutable {
		return &ImmutableError{Label: p.Label, Op: "autobuild"}
	}
	for _, dep := range p.deps {
		if !dep.Skip {
			if err := dep.Autobuild(ctx); err != nil {
				return fmt.Errorf("%s: building dependency: %w", p.Label, err)
			}
		}
		if dep.Skip {
			return &DependencyNotReadyError{Label: p.Label, Dependency: dep.Label, State: dep.state, Skipped: true}
		}
	}
	if p.state == StateConfigured || p.state == StateBuilt {
		return fmt.Errorf("%s: %w", p.Label, ErrManualSteps)
	}

	steps := []struct {
		name string
		run  func(context.Context) error
		skip bool
	}{
		{"checkout", p.Checkout, p.state >= StateCheckedOut},
		{"bootstrap", p.Bootstrap, p.state >= StateBootstrapped},
		{"configure", p.Configure, false},
		{"build", p.Build, false},
		{"install", p.Install, false},
		{"post-install", p.PostInstall, false},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		p.logger.Debug("running step", "step", step.name)
		if err := step.run(ctx); err != nil {
			p.logger.Error("step failed", "step", step.name, "log", p.LogPath, "error", err)
			return err
		}
	}
	return nil
}

// Cleanup removes the source and installation trees.
func (p *Project) Cleanup() error {
	for _, dir := range []string{p.SourcePath, p.InstallPath} {
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

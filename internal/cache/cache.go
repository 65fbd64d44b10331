// Package cache resolves labels of the descriptor table to projects and
// keeps built projects, with their dependencies, across process runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"

	qerrors "github.com/qiniu/x/errors"

	"github.com/lttng/lttng-ivc/internal/config"
	"github.com/lttng/lttng-ivc/internal/digest"
	"github.com/lttng/lttng-ivc/internal/project"
)

// Options configures a Service.
type Options struct {
	// Table is the label to descriptor table.
	Table config.Table

	// Root is the cache directory. Each label gets <Root>/<label>.
	Root string

	// LogicDigest fingerprints the build logic. Records written with another
	// digest are rebuilt. It defaults to the package-level LogicDigest.
	LogicDigest string

	// ProjectOptions are passed to every project created.
	ProjectOptions []project.Option

	Logger *slog.Logger
}

// Service builds each label at most once per process and reuses valid
// records left by earlier processes. It is not safe for concurrent use.
type Service struct {
	table  config.Table
	root   string
	logic  string
	popts  []project.Option
	logger *slog.Logger

	built map[string]*project.Project
}

// New returns a Service over opts.Table.
func New(opts Options) (*Service, error) {
	if opts.Root == "" {
		return nil, errors.New("cache: empty root directory")
	}
	if err := opts.Table.Validate(); err != nil {
		return nil, err
	}
	for _, label := range opts.Table.Labels() {
		if _, err := project.ParseKind(opts.Table[label].Project); err != nil {
			return nil, fmt.Errorf("label %q: %w", label, err)
		}
	}
	logic := opts.LogicDigest
	if logic == "" {
		var err error
		if logic, err = LogicDigest(); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	return &Service{
		table:  opts.Table,
		root:   root,
		logic:  logic,
		popts:  append([]project.Option{project.WithLogger(logger)}, opts.ProjectOptions...),
		logger: logger.With("component", "cache"),
		built:  make(map[string]*project.Project),
	}, nil
}

// Labels returns every label of the table in lexical order.
func (s *Service) Labels() []string { return s.table.Labels() }

func (s *Service) artifact(label string) (project.Artifact, error) {
	d, ok := s.table[label]
	if !ok {
		return project.Artifact{}, &UnknownLabelError{Label: label}
	}
	kind, err := project.ParseKind(d.Project)
	if err != nil {
		return project.Artifact{}, err
	}
	return project.Artifact{
		Label:    label,
		Kind:     kind,
		Source:   d.Source(),
		Revision: d.SHA1,
		Deps:     append([]string(nil), d.Deps...),
	}, nil
}

// Resolve returns a fresh, unbuilt project for label working in dir.
// Dependencies are not attached.
func (s *Service) Resolve(label, dir string) (*project.Project, error) {
	a, err := s.artifact(label)
	if err != nil {
		return nil, err
	}
	return project.New(a, dir, s.popts...)
}

// GetOrBuild returns the installed, immutable project for label, building it
// and its dependencies when no valid record exists. Repeated calls return the
// same project.
func (s *Service) GetOrBuild(ctx context.Context, label string) (*project.Project, error) {
	return s.get(ctx, label, nil)
}

func (s *Service) get(ctx context.Context, label string, stack []string) (*project.Project, error) {
	if p, ok := s.built[label]; ok {
		return p, nil
	}
	if slices.Contains(stack, label) {
		return nil, &CycleError{Path: append(slices.Clone(stack), label)}
	}
	stack = append(stack, label)

	a, err := s.artifact(label)
	if err != nil {
		return nil, err
	}
	deps := make([]*project.Project, 0, len(a.Deps))
	for _, dep := range a.Deps {
		p, err := s.get(ctx, dep, stack)
		if err != nil {
			return nil, err
		}
		deps = append(deps, p)
	}

	p, err := s.load(a, deps)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("invalid cache record, rebuilding", "label", label, "reason", err)
		}
		if p, err = s.build(ctx, a, deps); err != nil {
			return nil, err
		}
	}
	s.built[label] = p
	return p, nil
}

// load restores the recorded project of a if the record is still valid.
func (s *Service) load(a project.Artifact, deps []*project.Project) (*project.Project, error) {
	r, err := s.loadRecord(a.Label)
	if err != nil {
		return nil, err
	}
	snap := r.Project
	if err := s.check(snap, a, deps); err != nil {
		return nil, err
	}
	if want := filepath.Join(s.root, a.Label); snap.BaseDir != want {
		return nil, fmt.Errorf("recorded in %s, expected %s", snap.BaseDir, want)
	}
	if snap.State != project.StateInstalled && !snap.Skip {
		return nil, fmt.Errorf("recorded project is %s", snap.State)
	}
	installed, err := digest.Tree(filepath.Join(snap.BaseDir, "install"))
	if err != nil {
		return nil, err
	}
	if installed != snap.InstallDigest {
		return nil, errors.New("installation tree changed")
	}

	byLabel := make(map[string]*project.Project, len(deps))
	for _, dep := range deps {
		byLabel[dep.Label] = dep
	}
	ordered := make([]*project.Project, 0, len(deps))
	for _, label := range snap.DepOrder {
		ordered = append(ordered, byLabel[label])
	}
	return project.Restore(snap, ordered, s.popts...)
}

// check compares a recorded snapshot with the current artifact and
// dependency projects, recursively.
func (s *Service) check(snap project.Snapshot, a project.Artifact, deps []*project.Project) error {
	switch {
	case snap.LogicDigest != s.logic:
		return errors.New("build logic changed")
	case snap.Label != a.Label:
		return fmt.Errorf("record is for label %q", snap.Label)
	case snap.Revision != a.Revision:
		return fmt.Errorf("revision changed from %s to %s", snap.Revision, a.Revision)
	case snap.Kind != a.Kind.String():
		return fmt.Errorf("kind changed from %s to %s", snap.Kind, a.Kind)
	}
	if !sameSet(snap.DepOrder, a.Deps) || len(snap.Deps) != len(snap.DepOrder) {
		return fmt.Errorf("dependencies changed from %v to %v", snap.DepOrder, a.Deps)
	}
	for _, dep := range deps {
		nested, ok := snap.Deps[dep.Label]
		if !ok {
			return fmt.Errorf("dependency %s not recorded", dep.Label)
		}
		if err := s.check(nested, dep.Artifact, dep.Dependencies()); err != nil {
			return fmt.Errorf("dependency %s: %w", dep.Label, err)
		}
		if nested.InstallDigest != dep.InstallDigest {
			return fmt.Errorf("dependency %s was rebuilt", dep.Label)
		}
	}
	return nil
}

func (s *Service) build(ctx context.Context, a project.Artifact, deps []*project.Project) (*project.Project, error) {
	p, err := project.New(a, filepath.Join(s.root, a.Label), s.popts...)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if err := p.AddDependency(dep); err != nil {
			return nil, err
		}
	}
	s.logger.Info("building", "label", a.Label, "revision", a.Revision)
	if err := p.Autobuild(ctx); err != nil {
		return nil, err
	}
	p.MarkImmutable()
	p.LogicDigest = s.logic
	if p.InstallDigest, err = digest.Tree(p.InstallPath); err != nil {
		return nil, err
	}
	if err := s.saveRecord(p); err != nil {
		return nil, fmt.Errorf("%s: saving cache record: %w", a.Label, err)
	}
	return p, nil
}

// Precook builds every label in labels, in lexical order. A failing label
// does not stop the others; all failures are returned.
func (s *Service) Precook(ctx context.Context, labels []string) error {
	labels = slices.Clone(labels)
	sort.Strings(labels)
	var errs qerrors.List
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		if _, err := s.GetOrBuild(ctx, label); err != nil {
			s.logger.Error("precook failed", "label", label, "error", err)
			errs.Add(fmt.Errorf("%s: %w", label, err))
		}
	}
	return errs.ToError()
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	sort.Strings(a)
	sort.Strings(b)
	return slices.Equal(a, b)
}

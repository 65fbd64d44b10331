package project

import (
	"fmt"
	"maps"
)

// Snapshot is the plain data form of a Project persisted by the cache.
// Dependencies are nested snapshots keyed by label; DepOrder keeps their
// insertion order.
type Snapshot struct {
	Label         string              `cbor:"label"`
	Kind          string              `cbor:"kind"`
	Source        string              `cbor:"source"`
	Revision      string              `cbor:"revision"`
	State         State               `cbor:"state"`
	Skip          bool                `cbor:"skip"`
	BaseDir       string              `cbor:"base_dir"`
	BuildFlags    []string            `cbor:"build_flags"`
	SpecialEnv    map[string]string   `cbor:"special_env"`
	SchemaPath    string              `cbor:"schema_path,omitempty"`
	LogicDigest   string              `cbor:"logic_digest"`
	InstallDigest string              `cbor:"install_digest"`
	Deps          map[string]Snapshot `cbor:"deps"`
	DepOrder      []string            `cbor:"dep_order"`
}

// Snapshot returns the plain data form of p and its dependencies.
func (p *Project) Snapshot() Snapshot {
	s := Snapshot{
		Label:         p.Label,
		Kind:          p.Kind.String(),
		Source:        p.Source,
		Revision:      p.Revision,
		State:         p.state,
		Skip:          p.Skip,
		BaseDir:       p.BaseDir,
		BuildFlags:    append([]string(nil), p.BuildFlags...),
		SpecialEnv:    maps.Clone(p.special),
		SchemaPath:    p.SchemaPath,
		LogicDigest:   p.LogicDigest,
		InstallDigest: p.InstallDigest,
		Deps:          make(map[string]Snapshot, len(p.deps)),
	}
	for _, dep := range p.deps {
		s.Deps[dep.Label] = dep.Snapshot()
		s.DepOrder = append(s.DepOrder, dep.Label)
	}
	return s
}

func kindFromString(s string) (Kind, error) {
	for k := KindGeneric; k <= KindKernelModules; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Restore rehydrates the immutable project described by s on top of already
// restored dependencies, given in the order of s.DepOrder. Nothing on disk is
// touched.
func Restore(s Snapshot, deps []*Project, opts ...Option) (*Project, error) {
	kind, err := kindFromString(s.Kind)
	if err != nil {
		return nil, err
	}
	if len(deps) != len(s.DepOrder) {
		return nil, fmt.Errorf("%s: %d dependencies given, snapshot has %d", s.Label, len(deps), len(s.DepOrder))
	}
	a := Artifact{
		Label:    s.Label,
		Kind:     kind,
		Source:   s.Source,
		Revision: s.Revision,
		Deps:     append([]string(nil), s.DepOrder...),
	}
	p := newProject(a, s.BaseDir, newOptions(opts))
	p.state = s.State
	p.Skip = s.Skip
	p.BuildFlags = append([]string(nil), s.BuildFlags...)
	if s.SpecialEnv != nil {
		p.special = maps.Clone(s.SpecialEnv)
	}
	p.SchemaPath = s.SchemaPath
	p.LogicDigest = s.LogicDigest
	p.InstallDigest = s.InstallDigest
	for i, dep := range deps {
		if dep.Label != s.DepOrder[i] {
			return nil, fmt.Errorf("%s: dependency %d is %s, snapshot has %s", s.Label, i, dep.Label, s.DepOrder[i])
		}
	}
	p.deps = append(p.deps, deps...)
	p.immutable = true
	return p, nil
}

// FromSnapshot rehydrates the whole immutable project graph described by s.
func FromSnapshot(s Snapshot, opts ...Option) (*Project, error) {
	deps := make([]*Project, 0, len(s.DepOrder))
	for _, label := range s.DepOrder {
		ds, ok := s.Deps[label]
		if !ok {
			return nil, fmt.Errorf("%s: snapshot misses dependency %s", s.Label, label)
		}
		dep, err := FromSnapshot(ds, opts...)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return Restore(s, deps, opts...)
}

package project

import (
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PathVars maps the path-like environment variables composed from several
// projects to their separator.
var PathVars = map[string]string{
	"CPPFLAGS":        " ",
	"LDFLAGS":         " ",
	"LD_LIBRARY_PATH": ":",
	"PKG_CONFIG_PATH": ":",
	"PATH":            ":",
}

// Layer puts value in front of the current value of key in env, using the
// separator of key. Empty values are ignored.
func Layer(env map[string]string, key, value string) {
	if value == "" {
		return
	}
	sep, ok := PathVars[key]
	if !ok {
		sep = ":"
	}
	if cur := env[key]; cur != "" {
		value = value + sep + cur
	}
	env[key] = value
}

// OSEnv returns the process environment as a map.
func OSEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// SpecialSet accumulates special variables from several owners. Two owners
// may define the same variable only with the same value.
type SpecialSet struct {
	values map[string]string
	owners map[string]string
}

// NewSpecialSet returns an empty set.
func NewSpecialSet() *SpecialSet {
	return &SpecialSet{values: make(map[string]string), owners: make(map[string]string)}
}

// Add merges vars defined by owner.
func (s *SpecialSet) Add(owner string, vars map[string]string) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := vars[k]
		if cur, ok := s.values[k]; ok {
			if cur != v {
				return &EnvCollisionError{
					Key:    k,
					Owners: [2]string{s.owners[k], owner},
					Values: [2]string{cur, v},
				}
			}
			continue
		}
		s.values[k] = v
		s.owners[k] = owner
	}
	return nil
}

// Values returns a copy of the merged variables.
func (s *SpecialSet) Values() map[string]string { return maps.Clone(s.values) }

// Apply writes the merged variables into env. Path-like variables are
// layered in front of the existing value; the others override it.
func (s *SpecialSet) Apply(env map[string]string) {
	for k, v := range s.values {
		if _, ok := PathVars[k]; ok {
			Layer(env, k, v)
			continue
		}
		env[k] = v
	}
}

// SpecialEnv returns a copy of the variables this project requires.
func (p *Project) SpecialEnv() map[string]string { return maps.Clone(p.special) }

// AddSpecialEnv adds a variable required to build or run the project.
func (p *Project) AddSpecialEnv(key, value string) error {
	if p.immutable {
		return &ImmutableError{Label: p.Label, Op: "special environment change"}
	}
	if cur, ok := p.special[key]; ok {
		return &EnvCollisionError{
			Key:    key,
			Owners: [2]string{p.Label, p.Label},
			Values: [2]string{cur, value},
		}
	}
	p.special[key] = value
	return nil
}

// AddSpecials merges the special variables of p and of all its dependencies
// into s.
func (p *Project) AddSpecials(s *SpecialSet) error {
	if err := s.Add(p.Label, p.special); err != nil {
		return err
	}
	for _, dep := range p.deps {
		if err := dep.AddSpecials(s); err != nil {
			return err
		}
	}
	return nil
}

// collect joins the own value of p with the values of its dependencies,
// depth first in dependency order.
func (p *Project) collect(sep string, own func(*Project) string) string {
	parts := []string{own(p)}
	for _, dep := range p.deps {
		parts = append(parts, dep.collect(sep, own))
	}
	return strings.Join(parts, sep)
}

// CompileFlags returns the preprocessor flags needed to build against p.
func (p *Project) CompileFlags() string {
	return p.collect(" ", func(q *Project) string {
		return "-I" + filepath.Join(q.InstallPath, "include")
	})
}

// LinkFlags returns the linker flags needed to link against p.
func (p *Project) LinkFlags() string {
	return p.collect(" ", func(q *Project) string {
		return "-L" + filepath.Join(q.InstallPath, "lib")
	})
}

// LibraryPath returns the dynamic loader search path for p.
func (p *Project) LibraryPath() string {
	return p.collect(":", func(q *Project) string {
		return filepath.Join(q.InstallPath, "lib")
	})
}

// PkgConfigPath returns the pkg-config search path for p.
func (p *Project) PkgConfigPath() string {
	return p.collect(":", func(q *Project) string {
		return filepath.Join(q.InstallPath, "lib", "pkgconfig")
	})
}

// BinPath returns the executable search path for p.
func (p *Project) BinPath() string {
	return p.collect(":", func(q *Project) string {
		return filepath.Join(q.InstallPath, "bin")
	})
}

// Environment returns the environment to build p in: the process
// environment, the special variables of p and its dependencies, and the
// search paths of p layered in front of the inherited ones.
func (p *Project) Environment() (map[string]string, error) {
	specials := NewSpecialSet()
	if err := p.AddSpecials(specials); err != nil {
		return nil, err
	}
	env := OSEnv()
	for k, v := range specials.Values() {
		if cur, ok := env[k]; ok && cur != v {
			if _, path := PathVars[k]; !path {
				p.logger.Debug("special variable overrides inherited value", "key", k, "inherited", cur, "value", v)
			}
		}
	}
	specials.Apply(env)

	Layer(env, "CPPFLAGS", p.CompileFlags())
	Layer(env, "LDFLAGS", p.LinkFlags())
	Layer(env, "LD_LIBRARY_PATH", p.LibraryPath())
	Layer(env, "PKG_CONFIG_PATH", p.PkgConfigPath())
	Layer(env, "PATH", p.BinPath())
	return env, nil
}

// Package config loads the two YAML files driving the harness: the
// human-maintained marker list (config.yaml) and the label to descriptor table
// derived from it (run_configuration.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	qerrors "github.com/qiniu/x/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is matched by every validation failure of this package.
var ErrInvalid = errors.New("invalid configuration")

var commitRE = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Marker is one pinned version of a project as written by a human: a label,
// the remote to fetch and a branch, tag or commit.
type Marker struct {
	Marker      string   `yaml:"marker"`
	URL         string   `yaml:"url"`
	Ref         string   `yaml:"ref"`
	PrecookDeps []string `yaml:"precook_deps,omitempty"`
}

// Config maps a project name (lttng-tools, lttng-ust, ...) to its markers.
type Config map[string][]Marker

// Descriptor is the resolved, reproducible form of a Marker.
type Descriptor struct {
	Project string   `yaml:"project"`
	SHA1    string   `yaml:"sha1"`
	URL     string   `yaml:"url"`
	Path    string   `yaml:"path"`
	Deps    []string `yaml:"deps"`
}

// Table maps a label to its descriptor. It is read-only once loaded.
type Table map[string]Descriptor

// ValidationError lists every problem found in a file.
type ValidationError struct {
	File     string
	Problems qerrors.List
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d problem(s)", e.File, len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n\t")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// LoadConfig reads and validates a marker list.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Markers returns every marker label defined in the configuration.
func (c Config) Markers() map[string]string {
	labels := make(map[string]string)
	for proj, markers := range c {
		for _, m := range markers {
			labels[m.Marker] = proj
		}
	}
	return labels
}

func (c Config) validate(file string) error {
	var errs qerrors.List
	seen := make(map[string]bool)
	for _, proj := range sortedKeys(c) {
		for i, m := range c[proj] {
			switch {
			case m.Marker == "":
				errs.Add(fmt.Errorf("%s[%d]: missing marker", proj, i))
				continue
			case seen[m.Marker]:
				errs.Add(fmt.Errorf("duplicate entry for marker %q", m.Marker))
			}
			seen[m.Marker] = true
			if m.URL == "" {
				errs.Add(fmt.Errorf("marker %q: missing url", m.Marker))
			}
			if m.Ref == "" {
				errs.Add(fmt.Errorf("marker %q: missing ref", m.Marker))
			}
		}
	}
	labels := c.Markers()
	for _, proj := range sortedKeys(c) {
		for _, m := range c[proj] {
			for _, dep := range m.PrecookDeps {
				if _, ok := labels[dep]; !ok {
					errs.Add(fmt.Errorf("marker %q: dependency %q is not defined", m.Marker, dep))
				}
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{File: file, Problems: errs}
	}
	return nil
}

// LoadTable reads and validates a descriptor table.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := t.validate(path); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the table for missing fields, floating revisions and
// undefined dependencies.
func (t Table) Validate() error {
	return t.validate("descriptor table")
}

func (t Table) validate(file string) error {
	var errs qerrors.List
	for _, label := range t.Labels() {
		d := t[label]
		if d.Project == "" {
			errs.Add(fmt.Errorf("label %q: missing project", label))
		}
		if d.Path == "" && d.URL == "" {
			errs.Add(fmt.Errorf("label %q: missing source", label))
		}
		if !commitRE.MatchString(d.SHA1) {
			errs.Add(fmt.Errorf("label %q: %q is not a full commit id", label, d.SHA1))
		}
		for _, dep := range d.Deps {
			if _, ok := t[dep]; !ok {
				errs.Add(fmt.Errorf("label %q: dependency %q is not defined", label, dep))
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{File: file, Problems: errs}
	}
	return nil
}

// Source returns the location to clone for label: the local mirror when one
// was fetched, the remote otherwise.
func (d Descriptor) Source() string {
	if d.Path != "" {
		return d.Path
	}
	return d.URL
}

// Labels returns the labels of the table in lexical order.
func (t Table) Labels() []string {
	return sortedKeys(t)
}

// Save writes the table to path, creating parent directories as needed.
func (t Table) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

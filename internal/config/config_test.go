package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sha = "0123456789abcdef0123456789abcdef01234567"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", `
lttng-ust:
  - marker: lttng-ust-2.10
    url: https://git.lttng.org/lttng-ust.git
    ref: stable-2.10
lttng-tools:
  - marker: lttng-tools-2.10
    url: https://git.lttng.org/lttng-tools.git
    ref: v2.10.0
    precook_deps:
      - lttng-ust-2.10
lttng-modules:
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	markers := cfg.Markers()
	want := map[string]string{
		"lttng-ust-2.10":   "lttng-ust",
		"lttng-tools-2.10": "lttng-tools",
	}
	if !reflect.DeepEqual(markers, want) {
		t.Errorf("Markers() = %v, want %v", markers, want)
	}
	if deps := cfg["lttng-tools"][0].PrecookDeps; len(deps) != 1 || deps[0] != "lttng-ust-2.10" {
		t.Errorf("precook_deps = %v", deps)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", `
lttng-ust:
  - marker: a
    url: u
    ref: r
  - marker: a
    url: u
lttng-tools:
  - marker: b
    url: u
    ref: r
    precook_deps: [missing]
`)
	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("LoadConfig error = %v, want ErrInvalid", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %T is not a *ValidationError", err)
	}
	msg := verr.Error()
	for _, want := range []string{`duplicate entry for marker "a"`, `marker "a": missing ref`, `dependency "missing" is not defined`} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestTableSaveLoad(t *testing.T) {
	table := Table{
		"urcu-0.9": {Project: "urcu", SHA1: sha, URL: "https://example.org/urcu.git"},
		"lttng-ust-2.10": {
			Project: "lttng-ust",
			SHA1:    sha,
			URL:     "https://example.org/ust.git",
			Path:    "/mirror/ust",
			Deps:    []string{"urcu-0.9"},
		},
	}
	path := filepath.Join(t.TempDir(), "sub", "run_configuration.yaml")
	if err := table.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if !reflect.DeepEqual(got["lttng-ust-2.10"], table["lttng-ust-2.10"]) {
		t.Errorf("round trip mismatch: got %+v", got["lttng-ust-2.10"])
	}
	if labels := got.Labels(); !reflect.DeepEqual(labels, []string{"lttng-ust-2.10", "urcu-0.9"}) {
		t.Errorf("Labels() = %v", labels)
	}
	if src := got["lttng-ust-2.10"].Source(); src != "/mirror/ust" {
		t.Errorf("Source() = %q, want mirror path", src)
	}
	if src := got["urcu-0.9"].Source(); src != "https://example.org/urcu.git" {
		t.Errorf("Source() = %q, want url", src)
	}
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		want  string
	}{
		{"floating ref", Table{"a": {Project: "urcu", SHA1: "master", URL: "u"}}, "not a full commit id"},
		{"missing project", Table{"a": {SHA1: sha, URL: "u"}}, "missing project"},
		{"missing source", Table{"a": {Project: "urcu", SHA1: sha}}, "missing source"},
		{"undefined dep", Table{"a": {Project: "urcu", SHA1: sha, URL: "u", Deps: []string{"b"}}}, `dependency "b" is not defined`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}

	ok := Table{"a": {Project: "urcu", SHA1: sha, URL: "u"}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() on valid table = %v", err)
	}
}

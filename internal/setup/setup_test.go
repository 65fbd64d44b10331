package setup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lttng/lttng-ivc/internal/config"
	"github.com/lttng/lttng-ivc/internal/project/projecttest"
	"github.com/lttng/lttng-ivc/internal/vcs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	projecttest.RequireTools(t)
	ust, first := projecttest.Repo(t, projecttest.Options{Name: "ust"})
	projecttest.Git(t, ust, "branch", "stable-2.10")
	projecttest.Git(t, ust, "tag", "v2.10.0")
	tools, toolsRev := projecttest.Repo(t, projecttest.Options{Name: "tools"})

	cfgPath := writeConfig(t, `
lttng-ust:
  - marker: lttng-ust-2.10
    url: `+ust+`
    ref: stable-2.10
  - marker: lttng-ust-2.10.0
    url: `+ust+`
    ref: v2.10.0
lttng-tools:
  - marker: lttng-tools-2.10
    url: `+tools+`
    ref: `+toolsRev+`
    precook_deps:
      - lttng-ust-2.10
`)
	work := t.TempDir()
	o := Options{
		ConfigFile:    cfgPath,
		RunConfigFile: filepath.Join(work, "run_configuration.yaml"),
		GitRemoteDir:  filepath.Join(work, "git_remote"),
		Jobs:          2,
	}
	table, err := Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(table) != 3 {
		t.Fatalf("table = %v", table)
	}
	d := table["lttng-tools-2.10"]
	if d.Project != "lttng-tools" || d.SHA1 != toolsRev || d.URL != tools {
		t.Errorf("descriptor = %+v", d)
	}
	if d.Path != MirrorPath(o.GitRemoteDir, tools) {
		t.Errorf("path = %s", d.Path)
	}
	if len(d.Deps) != 1 || d.Deps[0] != "lttng-ust-2.10" {
		t.Errorf("deps = %v", d.Deps)
	}
	if table["lttng-ust-2.10"].SHA1 != first || table["lttng-ust-2.10.0"].SHA1 != first {
		t.Errorf("ust pinned to %s, want %s", table["lttng-ust-2.10"].SHA1, first)
	}
	if table["lttng-ust-2.10"].Path != table["lttng-ust-2.10.0"].Path {
		t.Error("one remote mirrored twice")
	}

	saved, err := config.LoadTable(o.RunConfigFile)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if saved["lttng-ust-2.10"].SHA1 != first || len(saved["lttng-tools-2.10"].Deps) != 1 {
		t.Errorf("saved table = %v", saved)
	}

	// A new commit on the branch is picked up; the tag stays put.
	if err := os.WriteFile(filepath.Join(ust, "NEWS"), []byte("news\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	projecttest.Git(t, ust, "checkout", "-q", "stable-2.10")
	projecttest.Git(t, ust, "add", "NEWS")
	projecttest.Git(t, ust, "commit", "-q", "-m", "news")
	second := projecttest.Git(t, ust, "rev-parse", "HEAD")

	table, err = Run(context.Background(), o)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := table["lttng-ust-2.10"].SHA1; got != second {
		t.Errorf("branch pinned to %s, want %s", got, second)
	}
	if got := table["lttng-ust-2.10.0"].SHA1; got != first {
		t.Errorf("tag pinned to %s, want %s", got, first)
	}
}

func TestRunUnknownRef(t *testing.T) {
	projecttest.RequireTools(t)
	repo, _ := projecttest.Repo(t, projecttest.Options{})
	work := t.TempDir()
	_, err := Run(context.Background(), Options{
		ConfigFile: writeConfig(t, `
urcu:
  - marker: urcu-0.9
    url: `+repo+`
    ref: stable-0.9
`),
		RunConfigFile: filepath.Join(work, "run_configuration.yaml"),
		GitRemoteDir:  filepath.Join(work, "git_remote"),
	})
	if err == nil || !strings.Contains(err.Error(), "urcu-0.9") {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "run_configuration.yaml")); !os.IsNotExist(err) {
		t.Error("table written despite an unknown ref")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	work := t.TempDir()
	_, err := Run(context.Background(), Options{
		ConfigFile: writeConfig(t, `
lttng-tools:
  - marker: lttng-tools-2.10
    url: u
    ref: r
    precook_deps: [lttng-ust-2.10]
`),
		RunConfigFile: filepath.Join(work, "run_configuration.yaml"),
		GitRemoteDir:  filepath.Join(work, "git_remote"),
	})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("Run() error = %v, want ErrInvalid", err)
	}
}

func TestMirrorNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := mirror(context.Background(), vcs.NewGitVCS(), "https://example.org/x.git", path)
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Fatalf("mirror() error = %v", err)
	}
}

func TestMirrorPath(t *testing.T) {
	a := MirrorPath("/r", "https://git.lttng.org/lttng-ust.git")
	b := MirrorPath("/r", "https://git.lttng.org/lttng-tools.git")
	if a == b || filepath.Dir(a) != "/r" || len(filepath.Base(a)) != 40 {
		t.Errorf("MirrorPath() = %s, %s", a, b)
	}
}

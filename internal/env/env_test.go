package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkDirDefault(t *testing.T) {
	t.Setenv(envWorkDir, "")

	dir, err := WorkDir()
	if err != nil {
		t.Fatalf("WorkDir() returned error: %v", err)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		t.Fatalf("os.UserCacheDir() returned error: %v", err)
	}
	if want := filepath.Join(userCacheDir, ".lttng-ivc"); dir != want {
		t.Errorf("WorkDir() = %q, want %q", dir, want)
	}
}

func TestWorkDirOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv(envWorkDir, root)
	t.Setenv(envCache, "")
	t.Setenv(envConfig, "")

	cache, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir() returned error: %v", err)
	}
	if want := filepath.Join(root, "runtime", "projects_cache"); cache != want {
		t.Errorf("CacheDir() = %q, want %q", cache, want)
	}
	info, err := os.Stat(cache)
	if err != nil {
		t.Fatalf("cache dir was not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", cache)
	}

	cfg, err := ConfigFile()
	if err != nil {
		t.Fatalf("ConfigFile() returned error: %v", err)
	}
	if want := filepath.Join(root, "config.yaml"); cfg != want {
		t.Errorf("ConfigFile() = %q, want %q", cfg, want)
	}
}

func TestFileOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "runs.yaml")
	t.Setenv(envRunConfig, want)

	got, err := RunConfigFile()
	if err != nil {
		t.Fatalf("RunConfigFile() returned error: %v", err)
	}
	if got != want {
		t.Errorf("RunConfigFile() = %q, want %q", got, want)
	}
}

func TestLabelSets(t *testing.T) {
	t.Setenv(envTestOnly, "lttng-ust-2.7, lttng-tools-2.10,,")
	t.Setenv(envDeprecated, "")

	only := TestOnly()
	if len(only) != 2 || !only["lttng-ust-2.7"] || !only["lttng-tools-2.10"] {
		t.Errorf("TestOnly() = %v", only)
	}
	if dep := Deprecated(); len(dep) != 0 {
		t.Errorf("Deprecated() = %v, want empty", dep)
	}
}

func TestTmpPrefix(t *testing.T) {
	t.Setenv(envTmpPrefix, "")
	if got := TmpPrefix(); got != DefaultTmpPrefix {
		t.Errorf("TmpPrefix() = %q, want %q", got, DefaultTmpPrefix)
	}
	t.Setenv(envTmpPrefix, "x-")
	if got := TmpPrefix(); got != "x-" {
		t.Errorf("TmpPrefix() = %q, want %q", got, "x-")
	}
}

// Package env resolves the harness workspace layout and tunables from the
// process environment.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	envWorkDir    = "LTTNG_IVC_WORKDIR"
	envConfig     = "LTTNG_IVC_CONFIG"
	envRunConfig  = "LTTNG_IVC_RUN_CONFIG"
	envCache      = "LTTNG_IVC_CACHE"
	envGitRemote  = "LTTNG_IVC_GIT_REMOTE"
	envTestOnly   = "LTTNG_IVC_TEST_ONLY"
	envDeprecated = "LTTNG_IVC_DEPRECATED"
	envTmpPrefix  = "LTTNG_IVC_TMP_PREFIX"
)

// DefaultTmpPrefix prefixes every temporary directory created for a runtime
// home. It is kept short since daemons bind UNIX sockets below it.
const DefaultTmpPrefix = "ivc-"

// WorkDir returns the root of the harness workspace.
// It defaults to <UserCacheDir>/.lttng-ivc.
func WorkDir() (string, error) {
	if dir := os.Getenv(envWorkDir); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".lttng-ivc"), nil
}

// ConfigFile returns the path of the human-maintained marker list.
func ConfigFile() (string, error) {
	return underWorkDir(envConfig, "config.yaml")
}

// RunConfigFile returns the path of the label to descriptor table produced
// by the bootstrap step.
func RunConfigFile() (string, error) {
	return underWorkDir(envRunConfig, "run_configuration.yaml")
}

// CacheDir returns the root of the project cache. It is created with 0700
// permissions if it does not exist.
func CacheDir() (string, error) {
	dir, err := underWorkDir(envCache, filepath.Join("runtime", "projects_cache"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// GitRemoteDir returns the directory holding one local mirror per remote.
// It is created with 0700 permissions if it does not exist.
func GitRemoteDir() (string, error) {
	dir, err := underWorkDir(envGitRemote, filepath.Join("runtime", "git_remote"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// TestOnly returns the labels selected for a partial run. An empty set means
// every matrix case runs.
func TestOnly() map[string]bool {
	return labelSet(os.Getenv(envTestOnly))
}

// Deprecated returns the labels excluded from precooking.
func Deprecated() map[string]bool {
	return labelSet(os.Getenv(envDeprecated))
}

// TmpPrefix returns the prefix used for runtime home directories.
func TmpPrefix() string {
	if p := os.Getenv(envTmpPrefix); p != "" {
		return p
	}
	return DefaultTmpPrefix
}

func underWorkDir(key, rel string) (string, error) {
	if p := os.Getenv(key); p != "" {
		return filepath.Abs(p)
	}
	dir, err := WorkDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, rel), nil
}

func labelSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = true
		}
	}
	return set
}

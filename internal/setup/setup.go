// Package setup turns the human-maintained marker list into the reproducible
// label table the rest of the harness works from. Every remote is mirrored
// locally and every ref is pinned to a full commit id.
package setup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	qerrors "github.com/qiniu/x/errors"

	"github.com/lttng/lttng-ivc/internal/config"
	"github.com/lttng/lttng-ivc/internal/par"
	"github.com/lttng/lttng-ivc/internal/vcs"
)

// Options configures Run.
type Options struct {
	// ConfigFile is the marker list to read.
	ConfigFile string

	// RunConfigFile receives the label table.
	RunConfigFile string

	// GitRemoteDir holds one mirror per remote.
	GitRemoteDir string

	// VCS defaults to git.
	VCS vcs.VCS

	// Jobs bounds the number of remotes fetched at once. It defaults to
	// the number of CPUs.
	Jobs int

	Logger *slog.Logger
}

// MirrorPath returns the directory mirroring url below root.
func MirrorPath(root, url string) string {
	sum := sha1.Sum([]byte(url))
	return filepath.Join(root, hex.EncodeToString(sum[:]))
}

// Run mirrors every remote named in the marker list, pins every marker and
// writes the resulting table. The table is returned as written.
func Run(ctx context.Context, o Options) (config.Table, error) {
	if o.VCS == nil {
		o.VCS = vcs.NewGitVCS()
	}
	if o.Jobs < 1 {
		o.Jobs = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	logger := o.Logger.With("component", "setup")

	cfg, err := config.LoadConfig(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(o.GitRemoteDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}

	remotes := make(map[string]string)
	var work par.Work[string]
	for _, markers := range cfg {
		for _, m := range markers {
			if _, ok := remotes[m.URL]; !ok {
				remotes[m.URL] = MirrorPath(root, m.URL)
				work.Add(m.URL)
			}
		}
	}
	err = work.Do(o.Jobs, func(url string) error {
		logger.Info("fetching remote", "url", url, "path", remotes[url])
		return mirror(ctx, o.VCS, url, remotes[url])
	})
	if err != nil {
		return nil, err
	}

	table := make(config.Table)
	var errs qerrors.List
	for _, proj := range sortedKeys(cfg) {
		for _, m := range cfg[proj] {
			path := remotes[m.URL]
			sha, err := o.VCS.Resolve(ctx, path, m.Ref)
			if err != nil {
				errs.Add(fmt.Errorf("marker %q: %w", m.Marker, err))
				continue
			}
			logger.Info("marker pinned", "marker", m.Marker, "sha1", sha)
			deps := m.PrecookDeps
			if deps == nil {
				deps = []string{}
			}
			table[m.Marker] = config.Descriptor{
				Project: proj,
				SHA1:    sha,
				URL:     m.URL,
				Path:    path,
				Deps:    deps,
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs.ToError()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if err := table.Save(o.RunConfigFile); err != nil {
		return nil, err
	}
	logger.Info("run configuration written", "path", o.RunConfigFile, "labels", len(table))
	return table, nil
}

// mirror clones url into path unless already done, then fetches it.
func mirror(ctx context.Context, v vcs.VCS, url, path string) error {
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := v.Clone(ctx, url, path); err != nil {
			return err
		}
	case err != nil:
		return err
	case !fi.IsDir():
		return fmt.Errorf("remote path %s exists and is not a directory", path)
	}
	if err := v.Fetch(ctx, path); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	return nil
}

func sortedKeys(c config.Config) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

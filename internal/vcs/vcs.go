package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnknownRef is returned when a reference names no branch, tag or commit.
var ErrUnknownRef = errors.New("unknown reference")

// VCS defines the version control operations the harness relies on.
type VCS interface {
	// Clone copies remote into dir. dir must not exist or be empty.
	Clone(ctx context.Context, remote, dir string) error

	// Fetch updates every remote-tracking branch and tag of the clone in dir.
	Fetch(ctx context.Context, dir string) error

	// Resolve turns ref into a full commit id. ref is tried, in order, as a
	// remote branch, a tag and a commit.
	Resolve(ctx context.Context, dir, ref string) (string, error)

	// Checkout detaches HEAD of the clone in dir at rev and resets the index
	// and working tree to it.
	Checkout(ctx context.Context, dir, rev string) error

	// Head returns the commit id HEAD points at.
	Head(ctx context.Context, dir string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Clone(ctx context.Context, remote, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	if err := g.run(ctx, "", "clone", "--quiet", remote, dir); err != nil {
		return fmt.Errorf("clone %s: %w", remote, err)
	}
	return nil
}

func (g *gitVCS) Fetch(ctx context.Context, dir string) error {
	if err := g.run(ctx, dir, "fetch", "--quiet", "--tags", "--force", "origin"); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func (g *gitVCS) Resolve(ctx context.Context, dir, ref string) (string, error) {
	for _, candidate := range []string{
		"refs/remotes/origin/" + ref,
		"refs/tags/" + ref,
		ref,
	} {
		out, err := g.output(ctx, dir, "rev-parse", "--verify", "--quiet", candidate+"^{commit}")
		if err == nil {
			return strings.TrimSpace(out), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownRef, ref)
}

func (g *gitVCS) Checkout(ctx context.Context, dir, rev string) error {
	if err := g.run(ctx, dir, "checkout", "--quiet", "--detach", rev); err != nil {
		return fmt.Errorf("checkout %s: %w", rev, err)
	}
	if err := g.run(ctx, dir, "reset", "--quiet", "--hard", rev); err != nil {
		return fmt.Errorf("reset %s: %w", rev, err)
	}
	return nil
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// Package gitrepo shells out to the git CLI for repository operations. The
// CLI is used instead of a pure-Go implementation so that the ambient
// credential helpers and SSH configuration of the host keep working.
package gitrepo

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/runner"
)

// Git wraps git CLI invocations rooted at a working directory per call.
type Git struct {
	run *runner.Runner
}

// New creates a Git wrapper sharing the given runner's timeout policy.
func New(r *runner.Runner) *Git {
	if r == nil {
		r = runner.New(5 * time.Minute)
	}
	return &Git{run: r}
}

// Clone clones url into dir with a shallow history.
func (g *Git) Clone(ctx context.Context, url, dir string) error {
	return g.exec(ctx, "", "clone", "--depth", "1", url, dir)
}

// Checkout switches dir to the given ref.
func (g *Git) Checkout(ctx context.Context, dir, ref string) error {
	return g.exec(ctx, dir, "checkout", ref)
}

// CreateBranch creates and switches to a new branch in dir.
func (g *Git) CreateBranch(ctx context.Context, dir, name string) error {
	return g.exec(ctx, dir, "checkout", "-b", name)
}

// CommitAll stages every change in dir and commits it. A clean tree is not
// an error; the commit is simply skipped.
func (g *Git) CommitAll(ctx context.Context, dir, message string) error {
	if err := g.exec(ctx, dir, "add", "-A"); err != nil {
		return err
	}

	res, err := g.run.Run(ctx, dir, "git", "status", "--porcelain")
	if err != nil {
		return eris.Wrap(err, "gitrepo: status")
	}
	if strings.TrimSpace(res.Stdout) == "" {
		zap.L().Debug("nothing to commit", zap.String("dir", dir))
		return nil
	}

	return g.exec(ctx, dir, "commit", "-m", message)
}

// Push pushes branch to the named remote.
func (g *Git) Push(ctx context.Context, dir, remote, branch string) error {
	return g.exec(ctx, dir, "push", "-u", remote, branch)
}

// LsRemote checks that url points at a reachable git repository without
// cloning it. Used to validate submission intake.
func (g *Git) LsRemote(ctx context.Context, url string) error {
	return g.exec(ctx, "", "ls-remote", "--exit-code", url, "HEAD")
}

func (g *Git) exec(ctx context.Context, dir string, args ...string) error {
	res, err := g.run.Run(ctx, dir, "git", args...)
	if err != nil {
		return eris.Wrapf(err, "gitrepo: git %s", args[0])
	}
	if res.TimedOut {
		return eris.Errorf("gitrepo: git %s timed out", args[0])
	}
	if res.ExitCode != 0 {
		return eris.Errorf("gitrepo: git %s exited %d: %s",
			args[0], res.ExitCode, strings.TrimSpace(res.Output()))
	}
	return nil
}

// Package vcs implements the local-VCS collaborator: the rally's
// only source of the repository's current diff when a working tree is
// available, and of the base-branch auto-detection used to build one.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandExecutor abstracts process execution so tests can script git
// output without shelling out.
type CommandExecutor interface {
	// Run executes name with args in dir under a process-level
	// timeout, returning stdout and an error classifying non-zero
	// exit and timeout distinctly.
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// CLIExecutor runs commands with os/exec.
type CLIExecutor struct{}

// NewCLIExecutor constructs a CLIExecutor.
func NewCLIExecutor() *CLIExecutor { return &CLIExecutor{} }

func (e *CLIExecutor) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%s %s: timed out", name, strings.Join(args, " "))
	}
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// gitTimeout bounds every individual git invocation this package
// makes.
const gitTimeout = 30 * time.Second

// Git is the local-VCS collaborator.
type Git struct {
	exec CommandExecutor
}

// New constructs a Git collaborator around the real CLI.
func New() *Git { return &Git{exec: NewCLIExecutor()} }

// NewWithExecutor constructs a Git collaborator around a custom
// CommandExecutor, for tests.
func NewWithExecutor(exec CommandExecutor) *Git { return &Git{exec: exec} }

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	return g.exec.Run(cctx, dir, "git", args...)
}

// FetchBaseBranch runs `git fetch origin <base>` and returns its
// error. CurrentDiff uses it best-effort and ignores a failure or
// timeout, since a subsequent diff against a stale ref is still better
// than aborting the rally over a flaky remote.
func (g *Git) FetchBaseBranch(ctx context.Context, workingDir, baseBranch string) error {
	_, err := g.run(ctx, workingDir, "fetch", "origin", baseBranch)
	return err
}

// ThreeDotDiff returns `git diff origin/<base>...HEAD`, the
// merge-base comparison that matches a forge's PR-diff semantics and
// excludes unrelated base-branch churn.
func (g *Git) ThreeDotDiff(ctx context.Context, workingDir, baseBranch string) (string, error) {
	return g.run(ctx, workingDir, "diff", fmt.Sprintf("origin/%s...HEAD", baseBranch))
}

// WorkingDiff returns `git diff HEAD`: staged and unstaged changes
// against the current commit, the Reviewee's freshest edits.
func (g *Git) WorkingDiff(ctx context.Context, workingDir string) (string, error) {
	return g.run(ctx, workingDir, "diff", "HEAD")
}

// CurrentDiff returns the repository's current diff: prefer the
// non-local three-dot comparison against origin/base when a working
// directory and base branch are available, falling back to the
// caller-supplied forge diff on empty output or failure. localMode
// instead prefers `diff HEAD`, then the three-dot comparison, and
// returns empty rather than ever reusing a stale value — the caller
// is responsible for not substituting context.Diff itself.
func (g *Git) CurrentDiff(ctx context.Context, workingDir, baseBranch string, localMode bool, forgeFallback func(context.Context) (string, error)) (string, error) {
	if localMode {
		if diff, err := g.WorkingDiff(ctx, workingDir); err == nil && strings.TrimSpace(diff) != "" {
			return diff, nil
		}
		if diff, err := g.ThreeDotDiff(ctx, workingDir, baseBranch); err == nil && strings.TrimSpace(diff) != "" {
			return diff, nil
		}
		return "", nil
	}

	if workingDir != "" {
		_ = g.FetchBaseBranch(ctx, workingDir, baseBranch)
		if diff, err := g.ThreeDotDiff(ctx, workingDir, baseBranch); err == nil && strings.TrimSpace(diff) != "" {
			return diff, nil
		}
	}

	if forgeFallback != nil {
		return forgeFallback(ctx)
	}
	return "", nil
}

// DetectBaseBranch auto-detects the branch a local checkout should be
// diffed against: first the tracked upstream's branch name (stripping
// an "origin/" prefix), then whichever of origin/main or
// origin/master exists. Returns "" if neither resolves.
func (g *Git) DetectBaseBranch(ctx context.Context, workingDir string) string {
	if upstream, err := g.run(ctx, workingDir, "rev-parse", "--abbrev-ref", "@{upstream}"); err == nil {
		upstream = strings.TrimSpace(upstream)
		if branch, ok := strings.CutPrefix(upstream, "origin/"); ok {
			return branch
		}
		if upstream != "" {
			return upstream
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := g.run(ctx, workingDir, "rev-parse", "--verify", "origin/"+candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// HeadSHA returns the working tree's current commit hash.
func (g *Git) HeadSHA(ctx context.Context, workingDir string) (string, error) {
	out, err := g.run(ctx, workingDir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

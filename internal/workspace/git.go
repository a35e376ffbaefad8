// ABOUTME: Git worktree implementation of the workspace Manager.
// ABOUTME: Concurrent git CLI calls are capped by a weighted semaphore.

package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"
)

// defaultGitSlots caps concurrent git CLI operations. Worktree adds for
// several inbound mentions at once would otherwise pile up processes.
const defaultGitSlots = 4

// GitManager manages workspaces as git worktrees of a single repository.
type GitManager struct {
	repoPath     string
	worktreeRoot string
	sem          *semaphore.Weighted
	logger       *slog.Logger
}

// NewGitManager creates a manager rooted at repoPath. Worktrees are
// placed under worktreeRoot, one directory per branch.
func NewGitManager(repoPath, worktreeRoot string, logger *slog.Logger) *GitManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitManager{
		repoPath:     repoPath,
		worktreeRoot: worktreeRoot,
		sem:          semaphore.NewWeighted(defaultGitSlots),
		logger:       logger.With("component", "workspace"),
	}
}

// Create adds a worktree for branch, creating the branch from the
// repository's current HEAD if it does not exist yet.
func (m *GitManager) Create(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		return "", fmt.Errorf("branch is required")
	}
	path := filepath.Join(m.worktreeRoot, sanitize(branch))

	err := m.withSlot(ctx, func() error {
		// -B reuses the branch if a previous run left it behind.
		_, err := m.git(ctx, "worktree", "add", "-B", branch, path)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating worktree for %q: %w", branch, err)
	}

	m.logger.Info("workspace created", "branch", branch, "path", path)
	return path, nil
}

// Delete removes the worktree and deletes its branch.
func (m *GitManager) Delete(ctx context.Context, path, branch string) error {
	err := m.withSlot(ctx, func() error {
		if _, err := m.git(ctx, "worktree", "remove", "--force", path); err != nil {
			return err
		}
		// Branch deletion is best-effort: the worktree is already gone,
		// and a branch with unmerged work is worth keeping around.
		if _, err := m.git(ctx, "branch", "-D", branch); err != nil {
			m.logger.Warn("branch deletion failed", "branch", branch, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting worktree %q: %w", path, err)
	}

	m.logger.Info("workspace deleted", "branch", branch, "path", path)
	return nil
}

// ListAll enumerates worktrees via `git worktree list --porcelain`,
// excluding the primary checkout.
func (m *GitManager) ListAll(ctx context.Context) ([]Workspace, error) {
	var out string
	err := m.withSlot(ctx, func() error {
		var err error
		out, err = m.git(ctx, "worktree", "list", "--porcelain")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	return m.parseWorktrees(out), nil
}

func (m *GitManager) parseWorktrees(out string) []Workspace {
	var result []Workspace
	var current Workspace
	flush := func() {
		if current.Path != "" && current.Path != m.repoPath {
			result = append(result, current)
		}
		current = Workspace{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return result
}

// withSlot runs fn holding one of the bounded git slots.
func (m *GitManager) withSlot(ctx context.Context, fn func() error) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)
	return fn()
}

func (m *GitManager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// sanitize maps a branch name onto a safe directory name.
func sanitize(branch string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, branch)
}

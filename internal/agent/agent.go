// ABOUTME: Agent record and deterministic session key derivation.
// ABOUTME: One agent is one supervised process bound to one workspace checkout.

package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tonksthebear/trybotster-sub005/internal/session"
)

// Agent is one interactive process bound to an isolated workspace.
// Exclusively owned by the Registry; other components hold only the Key.
type Agent struct {
	// Key is the deterministic session key, immutable for the agent's
	// lifetime. See SessionKey.
	Key string

	// Workspace is the checkout path the process runs in.
	Workspace string

	// Branch is the working branch bound to the workspace.
	Branch string

	// Issue is the originating issue number, zero when spawned by branch.
	Issue int

	StartedAt time.Time

	// Port is an allocated network port for an auxiliary helper process,
	// zero when none is running.
	Port int

	// Proc is the primary interactive process.
	Proc session.Session

	// Helper is the optional long-running helper process.
	Helper session.Session

	// Scrollback retains recent primary-process output for late viewers.
	Scrollback *Scrollback

	// HelperScrollback retains recent helper output, nil without a helper.
	HelperScrollback *Scrollback

	// Rows and Cols are the window dimensions last applied to Proc.
	Rows uint16
	Cols uint16
}

// Running reports liveness of the primary process.
func (a *Agent) Running() bool {
	return a.Proc != nil && a.Proc.Running()
}

// BranchForIssue derives the working branch name for an issue number.
func BranchForIssue(prefix string, issue int) string {
	if prefix == "" {
		prefix = "issue"
	}
	return fmt.Sprintf("%s-%d", prefix, issue)
}

// SessionKey derives the unique, deterministic key for an agent from the
// repository identifier and working branch. Spawn requests whose derived
// key already exists are no-ops, which is the dedup path for duplicate
// inbound mentions of the same issue.
func SessionKey(repo, branch string) string {
	repo = strings.TrimSuffix(strings.TrimSpace(repo), ".git")
	return repo + "#" + strings.TrimSpace(branch)
}

// ABOUTME: WorkspaceManager collaborator: isolated working-copy checkouts.
// ABOUTME: The hub delegates creation, deletion, and enumeration here.

package workspace

import "context"

// Workspace is one isolated checkout bound to a branch.
type Workspace struct {
	Path   string
	Branch string
}

// Manager creates, deletes, and enumerates workspaces. Implementations
// may block on I/O; the hub calls them off its scheduling loop.
type Manager interface {
	// Create prepares a checkout for the branch and returns its path.
	Create(ctx context.Context, branch string) (string, error)

	// Delete tears down the checkout and its branch.
	Delete(ctx context.Context, path, branch string) error

	// ListAll enumerates every workspace the manager knows about,
	// whether or not an agent is bound to it.
	ListAll(ctx context.Context) ([]Workspace, error)
}

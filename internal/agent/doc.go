// Package agent models one running agent session and the ordered
// registry the hub schedules over.
//
// # Overview
//
// An Agent binds a session key (repo + branch) to a live process, its
// workspace checkout, and a bounded scrollback of everything the
// process has written. The Registry keeps agents in insertion order and
// owns the primary cursor the local UI navigates with: next and
// previous wrap around, select-by-index is 1-based and rejects
// out-of-range positions.
//
// # Session Keys
//
// SessionKey derives "repo#branch" and is the identity spawn
// idempotence hangs off: a second spawn for a key that is live or
// pending is a no-op. BranchForIssue derives issue branches from the
// configured prefix, so issue 42 with prefix "issue" becomes
// "issue-42".
//
// # Scrollback
//
// Scrollback is a byte ring: writes beyond the capacity evict the
// oldest bytes, and reads return a copy in arrival order. The hub
// replays it to a viewer on selection before any live output, so a
// freshly attached viewer never sees a gap. Scrollback is safe for
// concurrent use because the session reader goroutine writes while
// renderers read.
//
// # Thread Safety
//
// The Registry itself does not lock; the hub's scheduling loop is the
// only mutator and guards read snapshots with its own RWMutex.
package agent

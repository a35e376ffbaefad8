// Package hub is the scheduling core that multiplexes agents and viewers.
//
// # Overview
//
// The Hub owns every piece of mutable state in the system: the agent
// registry, the client registry, the scrollback buffers, and the
// session processes. A single scheduling loop goroutine applies all
// mutations, so no registry needs its own locking; an RWMutex guards
// the read path so renderers can snapshot without entering the loop.
//
// # Actions
//
// Every intent from the local UI, a remote client, or the queue
// consumer arrives as an action.Action. Submit queues one and returns
// immediately; Do queues one and blocks for the result. The loop
// dispatches each action, delivers any replies through the issuing
// client's Sink, and broadcasts registry changes to everyone attached.
//
// # Spawning
//
// Spawn is the one operation too slow for the loop. The loop reserves
// the session key, hands workspace creation and process start to a
// worker goroutine, and finishes registration when the result comes
// back on the spawnDone channel. A second spawn for a reserved or live
// key is a no-op, so retries and duplicate queue deliveries are safe.
//
// # Output
//
// A polling pump drains each live session's output, appends it to the
// agent's scrollback, and fans it out to every viewer of that agent.
// Exited sessions are reaped on the same tick: viewers are notified,
// selections cleared, and the workspace kept for inspection unless the
// close asked for deletion.
package hub

// Package ingest feeds queue-originated work into the hub.
//
// # Overview
//
// External systems post mention messages to a NATS JetStream subject.
// The consumer decodes each one, drops duplicates seen inside the
// dedupe window, maps it onto a hub action, and dispatches it as the
// "queue" client. A new_mention spawns an agent for the named issue or
// branch; a cleanup closes the matching agent with its checkout kept.
//
// # Delivery Semantics
//
// Acknowledgement tracks what redelivery could fix. Malformed payloads
// and duplicates are consumed. A spawn refused by the session limit is
// left unconsumed so JetStream redelivers it once capacity frees up;
// everything else consumes on success or failure alike.
package ingest

// Package identity derives the stable deduplication key that ties an
// event to its reminder job.
package identity

import "github.com/google/uuid"

// Prefix namespaces reminder job identity keys in the shared jobs table.
const Prefix = "event_notify_"

// Key maps an event ID to the identity key of its reminder job.
// Deterministic and injective: the key is the prefix plus the canonical
// UUID encoding, so distinct event IDs can never collide. Stable across
// restarts; no randomness, no external state.
func Key(eventID uuid.UUID) string {
	return Prefix + eventID.String()
}

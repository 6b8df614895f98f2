package cache

import "fmt"

type Prefix string

const (
	// SessionLease namespaces the SETNX-backed lease key for §4.1 AcquireLease.
	SessionLease Prefix = "session_lease"
	// SessionStats namespaces the cached DeliveryStats snapshot for a session.
	SessionStats Prefix = "session_stats"
	// LastSendPerPhone namespaces the supplemental cross-process mirror of
	// the rate limiter's lastSendPerPhone map (diagnostics only, §4.2).
	LastSendPerPhone Prefix = "last_send_per_phone"
)

func (p Prefix) Key(id string) string {
	return fmt.Sprintf("%s:%s", p, id)
}

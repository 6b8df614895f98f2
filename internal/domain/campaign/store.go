package campaign

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by SessionStore.Load when no session exists for
// the given id.
var ErrNotFound = errors.New("session not found")

// ErrLeaseHeld is returned by AcquireLease when another owner already holds
// a non-expired lease on the session.
var ErrLeaseHeld = errors.New("session lease already held")

// Store is the C1 SessionStore persistence port: durable, crash-safe,
// atomic upsert-by-id persistence of campaign sessions.
//
// Implemented by infrastructure layers (GORM today); the executor and
// service layers depend only on this interface.
type Store interface {
	// Save upserts a session by SessionID.
	Save(ctx context.Context, s *Session) error

	// Load returns the session for id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// LoadActive returns the single active (sending/paused) session, if any.
	// Used by the host to offer a resume prompt after a cold start.
	LoadActive(ctx context.Context) (*Session, error)

	// ListScheduled returns every session in state `scheduled`, used by the
	// Scheduler (C8) to rebuild its durable fire heap on startup.
	ListScheduled(ctx context.Context) ([]*Session, error)

	// AcquireLease grants exclusive ownership of a session to ownerId for
	// ttl, failing if a non-expired lease is already held by someone else.
	AcquireLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error)

	// ReleaseLease gives up ownership early (e.g. on completion).
	ReleaseLease(ctx context.Context, sessionID, ownerID string) error

	// Checkpoint performs the partial progress update described in §4.1.
	// Callers are responsible for the ≤250ms/≤50-recipient batching cadence.
	Checkpoint(ctx context.Context, sessionID string, c Checkpoint) error

	// Clear removes a session and its recipients/outbound messages.
	Clear(ctx context.Context, sessionID string) error

	// SaveOutbound upserts a single OutboundMessage row.
	SaveOutbound(ctx context.Context, m *OutboundMessage) error

	// LoadOutbound fetches a single OutboundMessage by msgId.
	LoadOutbound(ctx context.Context, msgID string) (*OutboundMessage, error)

	// ClearExhausted bulk-deletes EXHAUSTED outbound messages for a session,
	// backing the §6 control-surface `clearExhausted` operation.
	ClearExhausted(ctx context.Context, sessionID string) (int64, error)
}

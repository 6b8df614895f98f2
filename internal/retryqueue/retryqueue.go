// Package retryqueue implements the C5 RetryQueue: a durable FIFO-by-
// nextRetryAt queue of OutboundMessages in state PENDING_RETRY, with
// exponential backoff and a bounded retry budget.
//
// Per §9's open question, the queue shares the OutboundMessage table
// rather than a separate queue table: Store is a query view
// (status = PENDING_RETRY, nextRetryAt <= now) over the same rows C1
// persists, using a SELECT ... FOR UPDATE SKIP LOCKED fetch.
package retryqueue

import (
	"context"
	"math/rand"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/oggyb/bulksms/internal/domain/campaign"
)

// Store is the persistence port RetryQueue needs from C1's backing store.
type Store interface {
	// DrainDue returns all OutboundMessages with status PENDING_RETRY and
	// nextRetryAt <= now, locked against concurrent drains, in order.
	DrainDue(ctx context.Context, sessionID string, now time.Time) ([]*campaign.OutboundMessage, error)

	// SaveOutbound upserts the message's new state (reused from campaign.Store).
	SaveOutbound(ctx context.Context, m *campaign.OutboundMessage) error

	// PurgeSession deletes all PENDING_RETRY rows for a session (stop §4.7).
	PurgeSession(ctx context.Context, sessionID string) error

	// HasDueWithinGrace reports whether any PENDING_RETRY row for sessionID
	// will come due within the grace window, for the §4.7 step-4 drain.
	HasDueWithinGrace(ctx context.Context, sessionID string, now time.Time, grace time.Duration) (bool, error)
}

// Policy is the §4.5 backoff/retry-budget configuration.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64 // fraction, e.g. 0.2 for ±20%
}

// Queue is the C5 RetryQueue.
type Queue struct {
	store  Store
	policy Policy
	rng    *rand.Rand
}

func New(store Store, policy Policy) *Queue {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Base <= 0 {
		policy.Base = 5 * time.Second
	}
	if policy.Cap <= 0 {
		policy.Cap = 5 * time.Minute
	}
	if policy.Jitter <= 0 {
		policy.Jitter = 0.2
	}
	return &Queue{store: store, policy: policy, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// backOff builds a cenkalti/backoff ExponentialBackOff configured so its
// curve reproduces §4.5's min(base·2^n, cap) ± jitter formula.
func (q *Queue) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.policy.Base
	b.Multiplier = 2
	b.MaxInterval = q.policy.Cap
	b.RandomizationFactor = q.policy.Jitter
	b.MaxElapsedTime = 0 // the retry budget is enforced by attempt count, not elapsed time
	return b
}

// NextDelay returns the backoff delay for the n-th retry (n starting at 0
// for the first retry), honoring the cap and ±jitter.
func (q *Queue) NextDelay(n int) time.Duration {
	b := q.backOff()
	b.Reset()
	var d time.Duration = b.NextBackOff()
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		d = q.policy.Cap
	}
	return d
}

// Enqueue schedules msg for retry after a transient failure, or marks it
// EXHAUSTED if the retry budget is spent.
func (q *Queue) Enqueue(ctx context.Context, msg *campaign.OutboundMessage, code, errMsg string) error {
	if msg.RetryCount >= q.policy.MaxAttempts {
		msg.MarkExhausted()
		return q.store.SaveOutbound(ctx, msg)
	}

	delay := q.NextDelay(msg.RetryCount)
	msg.MarkRetry(time.Now().Add(delay), code, errMsg)
	return q.store.SaveOutbound(ctx, msg)
}

// Defer reschedules msg to nextRetryAt without touching RetryCount or
// status: a rate-limiter deferral is not a send failure and must not spend
// retry budget, unlike Enqueue.
func (q *Queue) Defer(ctx context.Context, msg *campaign.OutboundMessage, nextRetryAt time.Time) error {
	msg.NextRetryAt = &nextRetryAt
	return q.store.SaveOutbound(ctx, msg)
}

// DrainDue returns all due retry items for a session, ready to be re-fed
// into the executor's send pipeline. Callers bypass ComplianceGate
// re-evaluation for drained items to avoid flapping (§4.5) but must still
// honor the RateLimiter.
func (q *Queue) DrainDue(ctx context.Context, sessionID string, now time.Time) ([]*campaign.OutboundMessage, error) {
	return q.store.DrainDue(ctx, sessionID, now)
}

// Purge removes all pending retries for a session, backing the `stop`
// transition's "also purges the session's C5 entries" requirement (§4.7).
func (q *Queue) Purge(ctx context.Context, sessionID string) error {
	return q.store.PurgeSession(ctx, sessionID)
}

// HasDueWithinGrace checks whether the end-of-recipients grace-drain
// window (§4.7 step 4) should keep the executor alive a little longer.
func (q *Queue) HasDueWithinGrace(ctx context.Context, sessionID string, now time.Time, grace time.Duration) (bool, error) {
	return q.store.HasDueWithinGrace(ctx, sessionID, now, grace)
}

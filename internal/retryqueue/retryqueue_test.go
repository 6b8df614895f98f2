package retryqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oggyb/bulksms/internal/domain/campaign"
)

// fakeStore is a hand-rolled in-memory Store double.
type fakeStore struct {
	mu      sync.Mutex
	saved   []*campaign.OutboundMessage
	purged  []string
	dueFrom map[string][]*campaign.OutboundMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{dueFrom: make(map[string][]*campaign.OutboundMessage)}
}

func (f *fakeStore) DrainDue(ctx context.Context, sessionID string, now time.Time) ([]*campaign.OutboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dueFrom[sessionID], nil
}

func (f *fakeStore) SaveOutbound(ctx context.Context, m *campaign.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeStore) PurgeSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, sessionID)
	return nil
}

func (f *fakeStore) HasDueWithinGrace(ctx context.Context, sessionID string, now time.Time, grace time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dueFrom[sessionID]) > 0, nil
}

func TestQueue_EnqueueSchedulesRetryWithinBudget(t *testing.T) {
	store := newFakeStore()
	q := New(store, Policy{MaxAttempts: 3, Base: 10 * time.Millisecond, Cap: time.Second, Jitter: 0.2})

	msg := &campaign.OutboundMessage{MsgID: "m1", RetryCount: 0, Status: campaign.MsgFailed}
	if err := q.Enqueue(context.Background(), msg, "timeout", "no ack"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if msg.Status != campaign.MsgPendingRetry {
		t.Fatalf("expected message to be queued for retry, got status %v", msg.Status)
	}
	if msg.NextRetryAt == nil || !msg.NextRetryAt.After(time.Now()) {
		t.Fatalf("expected a future NextRetryAt, got %v", msg.NextRetryAt)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one SaveOutbound call, got %d", len(store.saved))
	}
}

func TestQueue_EnqueueExhaustsAtBudget(t *testing.T) {
	store := newFakeStore()
	q := New(store, Policy{MaxAttempts: 2, Base: 10 * time.Millisecond, Cap: time.Second, Jitter: 0.2})

	msg := &campaign.OutboundMessage{MsgID: "m1", RetryCount: 2, Status: campaign.MsgFailed}
	if err := q.Enqueue(context.Background(), msg, "timeout", "no ack"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if msg.Status != campaign.MsgExhausted {
		t.Fatalf("expected EXHAUSTED once retry budget is spent, got %v", msg.Status)
	}
}

func TestQueue_NextDelayGrowsWithAttemptAndRespectsCap(t *testing.T) {
	q := New(newFakeStore(), Policy{MaxAttempts: 10, Base: 10 * time.Millisecond, Cap: 100 * time.Millisecond, Jitter: 0})

	d0 := q.NextDelay(0)
	d3 := q.NextDelay(3)

	if d0 <= 0 {
		t.Fatalf("expected a positive first-retry delay, got %v", d0)
	}
	if d3 < d0 {
		t.Fatalf("expected delay to grow with attempt count: d0=%v d3=%v", d0, d3)
	}
	if d3 > 100*time.Millisecond {
		t.Fatalf("expected delay capped at 100ms, got %v", d3)
	}
}

func TestQueue_DeferDoesNotConsumeRetryBudget(t *testing.T) {
	store := newFakeStore()
	q := New(store, Policy{MaxAttempts: 3, Base: 10 * time.Millisecond, Cap: time.Second, Jitter: 0.2})

	msg := &campaign.OutboundMessage{MsgID: "m1", RetryCount: 2, Status: campaign.MsgPendingRetry}
	at := time.Now().Add(250 * time.Millisecond)
	if err := q.Defer(context.Background(), msg, at); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	if msg.RetryCount != 2 {
		t.Fatalf("expected RetryCount unchanged by Defer, got %d", msg.RetryCount)
	}
	if msg.Status != campaign.MsgPendingRetry {
		t.Fatalf("expected status unchanged by Defer, got %v", msg.Status)
	}
	if msg.NextRetryAt == nil || !msg.NextRetryAt.Equal(at) {
		t.Fatalf("expected NextRetryAt set to %v, got %v", at, msg.NextRetryAt)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one SaveOutbound call, got %d", len(store.saved))
	}
}

func TestQueue_PurgeDelegatesToStore(t *testing.T) {
	store := newFakeStore()
	q := New(store, Policy{})

	if err := q.Purge(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(store.purged) != 1 || store.purged[0] != "sess-1" {
		t.Fatalf("expected sess-1 purged, got %v", store.purged)
	}
}

func TestQueue_HasDueWithinGrace(t *testing.T) {
	store := newFakeStore()
	store.dueFrom["sess-1"] = []*campaign.OutboundMessage{{MsgID: "m1"}}
	q := New(store, Policy{})

	ok, err := q.HasDueWithinGrace(context.Background(), "sess-1", time.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("HasDueWithinGrace: %v", err)
	}
	if !ok {
		t.Fatalf("expected a due item to be reported")
	}

	ok, err = q.HasDueWithinGrace(context.Background(), "sess-empty", time.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("HasDueWithinGrace: %v", err)
	}
	if ok {
		t.Fatalf("expected no due items for an empty session")
	}
}

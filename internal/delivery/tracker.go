// Package delivery implements the C6 DeliveryTracker: correlates
// send/delivery acknowledgments back to logical messages and computes
// running statistics.
package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oggyb/bulksms/internal/cache"
	"github.com/oggyb/bulksms/internal/events"
)

// State is the tracker's internal per-message state, a refinement of
// campaign.MessageStatus keeping DELIVERED_ASSUMED deliberately separate
// from DELIVERED (§9 Open Question #2).
type State string

const (
	StatePending          State = "PENDING"
	StateSent             State = "SENT"
	StateDelivered        State = "DELIVERED"
	StateDeliveredAssumed State = "DELIVERED_ASSUMED"
	StateFailed           State = "FAILED"
)

type tracked struct {
	msgID    string
	phone    string
	bodyHash string
	state    State
	sentAt   time.Time
}

// Stats is the derived statistics snapshot from §3.
type Stats struct {
	Total                int
	Sent                 int
	Delivered            int
	AssumedDelivered     int // subset of Delivered, flagged per §4.6
	Failed               int
	Pending              int
	DeliveryRate         float64
	AverageDeliveryLatencyMs int64
}

// Tracker is the C6 DeliveryTracker. It is a single-writer (the
// delivery-callback dispatcher) with multi-reader statistics snapshots,
// published RCU-style: publish-then-swap via atomic.Pointer (§5).
type Tracker struct {
	mu       sync.Mutex
	messages map[string]*tracked // by msgID
	// fallback index for (phone, bodyHash) lookup within a ±60s window
	// when the transport loses the msgId, per §4.6.
	byPhoneBody map[string][]*tracked

	deliveryTimeout time.Duration

	snapshot atomic.Pointer[Stats]
	bus      *events.Bus
	cache    cache.Cache

	totalLatency time.Duration
	latencyCount int
}

// New constructs a Tracker. c is an optional cache mirror for the published
// Stats snapshot (diagnostics only, §4.6/§C6); nil disables it.
func New(deliveryTimeout time.Duration, bus *events.Bus, c cache.Cache) *Tracker {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 15 * time.Minute
	}
	t := &Tracker{
		messages:        make(map[string]*tracked),
		byPhoneBody:     make(map[string][]*tracked),
		deliveryTimeout: deliveryTimeout,
		bus:             bus,
		cache:           c,
	}
	t.snapshot.Store(&Stats{})
	return t
}

// TrackPending registers a new PENDING attempt, generated by the executor
// before handing the message to Transport (correlation seam, §4.6).
func (t *Tracker) TrackPending(msgID, phone, bodyHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := &tracked{msgID: msgID, phone: phone, bodyHash: bodyHash, state: StatePending}
	t.messages[msgID] = tr
	key := fallbackKey(phone, bodyHash)
	t.byPhoneBody[key] = append(t.byPhoneBody[key], tr)
	t.updateSnapshotLocked()
}

// MarkSent transitions PENDING -> SENT on the transport's synchronous ack.
func (t *Tracker) MarkSent(msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.messages[msgID]; ok {
		tr.state = StateSent
		tr.sentAt = time.Now()
	}
	t.updateSnapshotLocked()
}

// MarkFailed transitions to FAILED (permanent send failure or exhausted
// retry budget).
func (t *Tracker) MarkFailed(msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.messages[msgID]; ok {
		tr.state = StateFailed
	}
	t.updateSnapshotLocked()
}

// Untrack removes bookkeeping for a msgID, e.g. once its owning
// OutboundMessage has reached a terminal state and is no longer of
// interest for the ±60s fallback-correlation window.
func (t *Tracker) Untrack(msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.messages[msgID]
	if !ok {
		return
	}
	delete(t.messages, msgID)
	key := fallbackKey(tr.phone, tr.bodyHash)
	list := t.byPhoneBody[key]
	for i, c := range list {
		if c == tr {
			t.byPhoneBody[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	t.updateSnapshotLocked()
}

// ReportDelivery records an asynchronous delivery report. If msgID is
// empty or unknown, it falls back to (phone, bodyHash, sendTime±60s)
// tuple matching per §4.6.
func (t *Tracker) ReportDelivery(msgID, phone, bodyHash string, delivered bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.messages[msgID]
	if !ok {
		tr = t.correlateLocked(phone, bodyHash, at)
	}
	if tr == nil {
		return
	}

	if delivered {
		latency := at.Sub(tr.sentAt)
		if tr.sentAt.IsZero() {
			latency = 0
		}
		t.totalLatency += latency
		t.latencyCount++
		tr.state = StateDelivered
	} else {
		tr.state = StateFailed
	}
	t.updateSnapshotLocked()
}

func (t *Tracker) correlateLocked(phone, bodyHash string, at time.Time) *tracked {
	key := fallbackKey(phone, bodyHash)
	for _, tr := range t.byPhoneBody[key] {
		if tr.sentAt.IsZero() {
			continue
		}
		if absDuration(at.Sub(tr.sentAt)) <= 60*time.Second {
			return tr
		}
	}
	return nil
}

// SweepAssumedDelivered promotes any SENT message older than the delivery
// timeout to DELIVERED_ASSUMED, per §4.6. Callers run this periodically
// (e.g. alongside the stats publish cadence).
func (t *Tracker) SweepAssumedDelivered(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tr := range t.messages {
		if tr.state == StateSent && !tr.sentAt.IsZero() && now.Sub(tr.sentAt) >= t.deliveryTimeout {
			tr.state = StateDeliveredAssumed
		}
	}
	t.updateSnapshotLocked()
}

// Snapshot returns the latest published Stats (lock-free read).
func (t *Tracker) Snapshot() Stats {
	return *t.snapshot.Load()
}

// updateSnapshotLocked recomputes Stats and swaps the lock-free-readable
// snapshot. It runs on every state transition; it does not publish to the
// bus or cache, since those have their own cadence (see PublishStats).
func (t *Tracker) updateSnapshotLocked() {
	var s Stats
	var avgLatency time.Duration

	for _, tr := range t.messages {
		s.Total++
		switch tr.state {
		case StatePending:
			s.Pending++
		case StateSent:
			s.Sent++
		case StateDelivered:
			s.Sent++
			s.Delivered++
		case StateDeliveredAssumed:
			s.Sent++
			s.Delivered++
			s.AssumedDelivered++
		case StateFailed:
			s.Failed++
		}
	}

	if s.Sent > 0 {
		s.DeliveryRate = float64(s.Delivered) / float64(max(1, s.Sent))
	}
	if t.latencyCount > 0 {
		avgLatency = t.totalLatency / time.Duration(t.latencyCount)
	}
	s.AverageDeliveryLatencyMs = avgLatency.Milliseconds()

	t.snapshot.Store(&s)
}

// PublishStats publishes the current snapshot to the bus and best-effort
// mirrors it to the cache, at whatever cadence the caller ticks it (§3/§4.6
// bound the publish rate to ≤4 Hz; callers should not invoke this on every
// mutation).
func (t *Tracker) PublishStats() {
	s := t.Snapshot()

	if t.bus != nil {
		t.bus.Publish(events.Event{Kind: events.KindStatistics, Payload: s})
	}
	t.mirrorStats(s)
}

func (t *Tracker) mirrorStats(s Stats) {
	if t.cache == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = t.cache.Set(ctx, cache.SessionStats.Key("global"), string(data), time.Minute)
	}()
}

func fallbackKey(phone, bodyHash string) string {
	return phone + "|" + bodyHash
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

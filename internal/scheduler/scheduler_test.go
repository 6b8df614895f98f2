package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeTrigger is a hand-rolled test double that records which sessions
// were fired and signals the first fire.
type fakeTrigger struct {
	mu      sync.Mutex
	fired   []string
	started chan struct{}
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{started: make(chan struct{}, 8)}
}

func (f *fakeTrigger) Start(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.fired = append(f.fired, sessionID)
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTrigger) Fired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fired))
	copy(out, f.fired)
	return out
}

type fakeStore struct {
	entries []ScheduledSession
}

func (f *fakeStore) ListScheduled(ctx context.Context) ([]ScheduledSession, error) {
	return f.entries, nil
}

func TestScheduler_FiresWhenDue(t *testing.T) {
	trigger := newFakeTrigger()
	s := NewSchedulerService(trigger, &fakeStore{}, 20*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Schedule("sess-1", time.Now().Add(15*time.Millisecond), "UTC"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-trigger.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected session to fire, it did not")
	}

	fired := trigger.Fired()
	if len(fired) != 1 || fired[0] != "sess-1" {
		t.Fatalf("expected [sess-1] fired, got %v", fired)
	}
}

func TestScheduler_DoesNotFireBeforeStart(t *testing.T) {
	trigger := newFakeTrigger()
	s := NewSchedulerService(trigger, &fakeStore{}, 20*time.Millisecond)

	if err := s.Schedule("sess-1", time.Now().Add(5*time.Millisecond), "UTC"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-trigger.started:
		t.Fatalf("did not expect a fire before Start()")
	case <-time.After(100 * time.Millisecond):
		// expected: scheduler is loaded but not running
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-trigger.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected fire shortly after Start()")
	}
}

func TestScheduler_MissedFireCatchesUpOnLoad(t *testing.T) {
	trigger := newFakeTrigger()
	store := &fakeStore{entries: []ScheduledSession{
		{SessionID: "late-1", FireAt: time.Now().Add(-time.Hour), Timezone: "UTC"},
	}}
	s := NewSchedulerService(trigger, store, 20*time.Millisecond)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-trigger.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected a missed-fire catch-up immediately after Start()")
	}

	fired := trigger.Fired()
	if len(fired) != 1 || fired[0] != "late-1" {
		t.Fatalf("expected [late-1] fired, got %v", fired)
	}
}

func TestScheduler_IsRunningReflectsStartStop(t *testing.T) {
	trigger := newFakeTrigger()
	s := NewSchedulerService(trigger, &fakeStore{}, 20*time.Millisecond)

	if s.IsRunning() {
		t.Fatalf("expected not running before Start()")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("expected running after Start()")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("expected not running after Stop()")
	}
}

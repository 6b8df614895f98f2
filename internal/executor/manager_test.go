package executor

import (
	"context"
	"testing"
	"time"

	"github.com/oggyb/bulksms/internal/domain/campaign"
)

// TestManager_StopWhilePausedPurgesAndReleasesLease drives driveSession
// directly so the pause is deterministic: Run's first invocation sees the
// pause signal already buffered and returns outcomePaused before
// driveSession ever blocks on the resume/ctx.Done() select, matching the
// state a Manager.Stop() call has to handle for a session that paused
// before the stop arrived.
func TestManager_StopWhilePausedPurgesAndReleasesLease(t *testing.T) {
	exec, store, _, _ := newHarness(t)
	recipients := []campaign.Recipient{
		{ID: "1", Phone: "+15550011111"},
		{ID: "2", Phone: "+15550022222"},
	}
	s := mustSession(t, store, recipients)

	m := NewManager(exec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		cancel: cancel,
		pause:  make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	r.pause <- struct{}{}

	m.mu.Lock()
	m.runs[s.SessionID] = r
	m.mu.Unlock()

	go m.driveSession(ctx, s.SessionID, r)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.Load(context.Background(), s.SessionID)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.ProcessingStatus == campaign.StatusPaused {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the run to pause, status=%s", got.ProcessingStatus)
		}
		time.Sleep(5 * time.Millisecond)
	}

	pending := campaign.NewOutboundMessage(s.SessionID, 1, "+15550022222", "hi", 0)
	pending.MarkRetry(time.Now().Add(-time.Second), "timeout", "transient")
	if err := store.SaveOutbound(context.Background(), pending); err != nil {
		t.Fatalf("SaveOutbound: %v", err)
	}

	if err := m.Stop(s.SessionID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, err := store.Load(context.Background(), s.SessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ProcessingStatus != campaign.StatusStopped {
		t.Fatalf("expected stopping a paused session to persist stopped, got %s", got.ProcessingStatus)
	}

	due, err := store.DrainDue(context.Background(), s.SessionID, time.Now())
	if err != nil {
		t.Fatalf("DrainDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected the retry queue purged by stopping a paused session, found %d due items", len(due))
	}

	if ok, err := store.AcquireLease(context.Background(), s.SessionID, "another-owner", time.Minute); err != nil || !ok {
		t.Fatalf("expected lease released by stopping a paused session, acquire=%v err=%v", ok, err)
	}
	if m.IsRunning(s.SessionID) {
		t.Fatalf("expected the run to be forgotten after Stop")
	}
}

package delivery

import (
	"testing"
	"time"

	"github.com/oggyb/bulksms/internal/events"
)

func TestTracker_PendingThenSentThenDelivered(t *testing.T) {
	tr := New(15*time.Minute, nil, nil)

	tr.TrackPending("m1", "+14155552671", "hash1")
	if s := tr.Snapshot(); s.Pending != 1 || s.Total != 1 {
		t.Fatalf("expected 1 pending, got %+v", s)
	}

	tr.MarkSent("m1")
	if s := tr.Snapshot(); s.Sent != 1 || s.Pending != 0 {
		t.Fatalf("expected 1 sent, 0 pending, got %+v", s)
	}

	tr.ReportDelivery("m1", "", "", true, time.Now())
	s := tr.Snapshot()
	if s.Delivered != 1 {
		t.Fatalf("expected 1 delivered, got %+v", s)
	}
	if s.DeliveryRate != 1 {
		t.Fatalf("expected delivery rate 1.0, got %v", s.DeliveryRate)
	}
}

func TestTracker_MarkFailedCountsAsFailed(t *testing.T) {
	tr := New(15*time.Minute, nil, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.MarkFailed("m1")

	s := tr.Snapshot()
	if s.Failed != 1 || s.Pending != 0 {
		t.Fatalf("expected 1 failed, 0 pending, got %+v", s)
	}
}

func TestTracker_SweepPromotesSentToAssumedDeliveredPastTimeout(t *testing.T) {
	tr := New(10*time.Millisecond, nil, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.MarkSent("m1")

	tr.SweepAssumedDelivered(time.Now().Add(time.Hour))

	s := tr.Snapshot()
	if s.AssumedDelivered != 1 || s.Delivered != 1 {
		t.Fatalf("expected the sent message to be promoted to assumed-delivered, got %+v", s)
	}
}

func TestTracker_SweepLeavesRecentSentAlone(t *testing.T) {
	tr := New(time.Hour, nil, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.MarkSent("m1")

	tr.SweepAssumedDelivered(time.Now())

	s := tr.Snapshot()
	if s.AssumedDelivered != 0 {
		t.Fatalf("expected no promotion before the delivery timeout elapses, got %+v", s)
	}
}

func TestTracker_ReportDeliveryFallsBackToPhoneBodyCorrelation(t *testing.T) {
	tr := New(time.Hour, nil, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.MarkSent("m1")

	// The transport loses the msgId on the async callback; correlation must
	// fall back to (phone, bodyHash) within the ±60s window.
	tr.ReportDelivery("", "+14155552671", "hash1", true, time.Now())

	s := tr.Snapshot()
	if s.Delivered != 1 {
		t.Fatalf("expected fallback correlation to mark the message delivered, got %+v", s)
	}
}

func TestTracker_UntrackRemovesBookkeeping(t *testing.T) {
	tr := New(time.Hour, nil, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.MarkSent("m1")
	tr.Untrack("m1")

	// A delivery report after Untrack can no longer correlate by msgId or
	// by the phone/body fallback.
	tr.ReportDelivery("m1", "+14155552671", "hash1", true, time.Now())

	s := tr.Snapshot()
	if s.Total != 0 {
		t.Fatalf("expected no tracked messages after Untrack, got %+v", s)
	}
}

func TestTracker_PublishesStatisticsOnBus(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	tr := New(time.Hour, bus, nil)
	tr.TrackPending("m1", "+14155552671", "hash1")
	tr.PublishStats()

	select {
	case ev := <-ch:
		if ev.Kind != events.KindStatistics {
			t.Fatalf("expected a statistics event, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a statistics event to be published")
	}
}

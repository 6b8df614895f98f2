package service

import (
	"context"
	"testing"
	"time"

	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
	"github.com/oggyb/bulksms/internal/transport"
)

func newTestService(t *testing.T) (*CampaignService, *campaign.MemoryStore, *transport.FakeTransport) {
	t.Helper()
	store := campaign.NewMemoryStore()
	optouts := optout.NewMemoryRepository()
	xport := transport.NewFakeTransport()
	cfg := config.New()
	svc := New(store, optouts, xport, cfg, "test-owner", nil)
	return svc, store, xport
}

func TestCampaignService_CreateSessionPersists(t *testing.T) {
	svc, store, _ := newTestService(t)

	recipients := []campaign.Recipient{{ID: "r1", Phone: "+14155552671", Name: "Ana"}}
	session, err := svc.CreateSession(context.Background(), "list.csv", "hi {{name}}", recipients, 1, "welcome", campaign.CategoryMarketing)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	loaded, err := store.Load(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("expected the session to be persisted: %v", err)
	}
	if loaded.CampaignName != "welcome" {
		t.Fatalf("unexpected persisted session: %+v", loaded)
	}
}

func TestCampaignService_CreateSessionRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateSession(context.Background(), "list.csv", "hi", nil, 1, "empty", campaign.CategoryMarketing)
	if err == nil {
		t.Fatalf("expected an error for a session with no recipients")
	}
}

func TestCampaignService_StartRunsAndDelivers(t *testing.T) {
	svc, _, xport := newTestService(t)

	recipients := []campaign.Recipient{{ID: "r1", Phone: "+14155552671", Name: "Ana"}}
	session, err := svc.CreateSession(context.Background(), "list.csv", "hi {{name}}", recipients, 1000, "welcome", campaign.CategoryTransactional)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := svc.Start(context.Background(), session.SessionID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for xport.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if xport.Calls() == 0 {
		t.Fatalf("expected the executor to send at least one message")
	}
}

func TestCampaignService_AddOptOutNormalizesPhone(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.AddOptOut(context.Background(), "+1 415 555 2671", "stop"); err != nil {
		t.Fatalf("AddOptOut: %v", err)
	}
}

func TestCampaignService_AddOptOutRejectsInvalidPhone(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.AddOptOut(context.Background(), "not-a-phone", "stop"); err == nil {
		t.Fatalf("expected an error for an invalid phone number")
	}
}

func TestCampaignService_GetReturnsNotFoundError(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), "missing"); err == nil {
		t.Fatalf("expected an error for a missing session")
	}
}

func TestCampaignService_SubscribeReceivesEvents(t *testing.T) {
	svc, _, _ := newTestService(t)

	ch, unsub := svc.Subscribe(4)
	defer unsub()

	recipients := []campaign.Recipient{{ID: "r1", Phone: "+14155552671", Name: "Ana"}}
	session, err := svc.CreateSession(context.Background(), "list.csv", "hi {{name}}", recipients, 1000, "welcome", campaign.CategoryTransactional)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := svc.Start(context.Background(), session.SessionID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected at least one event on the subscription")
	}
}

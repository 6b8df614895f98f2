package compliance

import (
	"context"
	"testing"

	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
)

func TestGate_BlocksInvalidNumber(t *testing.T) {
	gate := New(optout.NewMemoryRepository(), false)

	decision, err := gate.Check(context.Background(), "not-a-phone", campaign.CategoryMarketing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Result != Blocked {
		t.Fatalf("expected Blocked, got %v", decision.Result)
	}
}

func TestGate_RejectsOptedOutNumber(t *testing.T) {
	repo := optout.NewMemoryRepository()
	if err := repo.Add(context.Background(), optout.Record{Phone: "+14155552671", Reason: "STOP"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	gate := New(repo, false)

	decision, err := gate.Check(context.Background(), "+14155552671", campaign.CategoryMarketing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Result != OptedOut {
		t.Fatalf("expected OptedOut, got %v", decision.Result)
	}
}

func TestGate_RequiresConsentForMarketingWhenConfigured(t *testing.T) {
	repo := optout.NewMemoryRepository()
	gate := New(repo, true)

	decision, err := gate.Check(context.Background(), "+14155552671", campaign.CategoryMarketing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Result != RequiresConsent {
		t.Fatalf("expected RequiresConsent, got %v", decision.Result)
	}

	if err := repo.GrantConsent(context.Background(), "+14155552671"); err != nil {
		t.Fatalf("GrantConsent: %v", err)
	}

	decision, err = gate.Check(context.Background(), "+14155552671", campaign.CategoryMarketing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Result != Compliant {
		t.Fatalf("expected Compliant after consent granted, got %v", decision.Result)
	}
}

func TestGate_TransactionalBypassesConsentRequirement(t *testing.T) {
	gate := New(optout.NewMemoryRepository(), true)

	decision, err := gate.Check(context.Background(), "+14155552671", campaign.CategoryTransactional)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Result != Compliant {
		t.Fatalf("expected Compliant for transactional traffic, got %v", decision.Result)
	}
}

func TestNormalize(t *testing.T) {
	normalized, err := Normalize("+1 (415) 555-2671")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if normalized != "+14155552671" {
		t.Fatalf("expected E.164 form, got %q", normalized)
	}

	if _, err := Normalize("garbage"); err == nil {
		t.Fatalf("expected error for unparseable number")
	}
}

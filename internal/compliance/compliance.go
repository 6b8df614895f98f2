// Package compliance implements the C3 ComplianceGate: a pure,
// first-match-wins policy check on whether a recipient may be sent to right
// now.
package compliance

import (
	"context"
	"fmt"

	"github.com/nyaruka/phonenumbers"

	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
)

// Result is the outcome of a compliance check.
type Result string

const (
	Compliant       Result = "COMPLIANT"
	OptedOut        Result = "OPT_OUT"
	Blocked         Result = "BLOCKED"
	RequiresConsent Result = "REQUIRES_CONSENT"
)

// Decision carries the result and a machine-stable reason.
type Decision struct {
	Result Result
	Reason string
}

// Gate is the C3 ComplianceGate.
type Gate struct {
	optouts                     optout.Repository
	requireConsentForMarketing bool
}

func New(optouts optout.Repository, requireConsentForMarketing bool) *Gate {
	return &Gate{optouts: optouts, requireConsentForMarketing: requireConsentForMarketing}
}

// Check evaluates the §4.3 rules in order; the first match wins.
func (g *Gate) Check(ctx context.Context, phone string, cat campaign.Category) (Decision, error) {
	// Rule 1: E.164 parseability.
	num, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return Decision{Result: Blocked, Reason: "invalid_number"}, nil
	}
	normalized := phonenumbers.Format(num, phonenumbers.E164)

	// Rule 2: opt-out set.
	optedOut, err := g.optouts.IsOptedOut(ctx, normalized)
	if err != nil {
		return Decision{}, fmt.Errorf("compliance: opt-out lookup: %w", err)
	}
	if optedOut {
		return Decision{Result: OptedOut, Reason: "opted_out"}, nil
	}

	// Rule 3: marketing consent.
	if cat == campaign.CategoryMarketing && g.requireConsentForMarketing {
		hasConsent, err := g.optouts.HasConsent(ctx, normalized)
		if err != nil {
			return Decision{}, fmt.Errorf("compliance: consent lookup: %w", err)
		}
		if !hasConsent {
			return Decision{Result: RequiresConsent, Reason: "consent_required"}, nil
		}
	}

	// Rule 4: compliant.
	return Decision{Result: Compliant}, nil
}

// Normalize returns the E.164 form of phone, or an error if unparseable.
// Exposed so callers (executor) can persist/send using the normalized form.
func Normalize(phone string) (string, error) {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid number: %s", phone)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

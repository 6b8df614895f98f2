// Package optout holds the domain model for opt-out/blocklist records
// consulted read-only by the ComplianceGate (C3).
package optout

import (
	"context"
	"time"
)

// Record is created on an inbound "STOP"-like keyword or explicit user
// action. Phone is unique.
type Record struct {
	Phone     string
	Reason    string
	CreatedAt time.Time
}

// ConsentRecord marks that a recipient has given marketing consent, used by
// ComplianceGate rule 3 (REQUIRES_CONSENT).
type ConsentRecord struct {
	Phone     string
	GrantedAt time.Time
}

// Repository is the durable keyed-set persistence port for opt-out and
// consent records.
type Repository interface {
	Add(ctx context.Context, r Record) error
	IsOptedOut(ctx context.Context, phone string) (bool, error)
	All(ctx context.Context) ([]Record, error)

	GrantConsent(ctx context.Context, phone string) error
	HasConsent(ctx context.Context, phone string) (bool, error)
}

package optoutgorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/bulksms/internal/db"
	"github.com/oggyb/bulksms/internal/domain/optout"
)

// Repository is a GORM-backed implementation of optout.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

// Add upserts an opt-out record, created on an inbound STOP-like keyword
// or explicit user action.
func (r *Repository) Add(ctx context.Context, rec optout.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	model := OptOutModel{Phone: rec.Phone, Reason: rec.Reason, CreatedAt: rec.CreatedAt}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "created_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("add opt-out %s: %w", rec.Phone, err)
	}
	return nil
}

// IsOptedOut is consulted read-only by the ComplianceGate.
func (r *Repository) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OptOutModel{}).Where("phone = ?", phone).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check opt-out %s: %w", phone, err)
	}
	return count > 0, nil
}

// All returns every opt-out record, e.g. for diagnostics/export.
func (r *Repository) All(ctx context.Context) ([]optout.Record, error) {
	var models []OptOutModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list opt-outs: %w", err)
	}
	out := make([]optout.Record, len(models))
	for i, m := range models {
		out[i] = optout.Record{Phone: m.Phone, Reason: m.Reason, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

// GrantConsent records that a recipient has opted in to marketing sends.
func (r *Repository) GrantConsent(ctx context.Context, phone string) error {
	model := ConsentModel{Phone: phone, GrantedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("grant consent %s: %w", phone, err)
	}
	return nil
}

// HasConsent backs ComplianceGate rule 3 (REQUIRES_CONSENT).
func (r *Repository) HasConsent(ctx context.Context, phone string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ConsentModel{}).Where("phone = ?", phone).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check consent %s: %w", phone, err)
	}
	return count > 0, nil
}

var _ optout.Repository = (*Repository)(nil)

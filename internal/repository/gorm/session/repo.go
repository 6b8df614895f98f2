package sessiongorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/bulksms/internal/cache"
	"github.com/oggyb/bulksms/internal/db"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/retryqueue"
)

// Repository is a GORM-backed implementation of campaign.Store, using the
// db.DB port to reach the underlying *gorm.DB, and the cache port (Redis
// in production) to back the §4.1 distributed lease via SETNX/TTL.
type Repository struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewRepository constructs a session repository using the given DB adapter
// and cache (for leases).
func NewRepository(d db.DB, c cache.Cache) *Repository {
	return &Repository{
		db:    d.Conn().(*gorm.DB),
		cache: c,
	}
}

// Save upserts a session's top-level fields and, on first save, its
// recipients. Recipients are immutable once enqueued (§3) so subsequent
// Save calls never rewrite them.
func (r *Repository) Save(ctx context.Context, s *campaign.Session) error {
	model := fromDomainSession(s)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"file_name", "template", "send_speed", "sim_slot", "campaign_name", "campaign_type", "last_processed_index", "sent_count", "failed_count", "skipped_count", "processing_status", "scheduled_at", "updated_at"}),
		}).Create(model).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&RecipientModel{}).Where("session_id = ?", s.SessionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 && len(s.Recipients) > 0 {
			recipientModels := fromDomainRecipients(s.SessionID, s.Recipients)
			if err := tx.CreateInBatches(recipientModels, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	return nil
}

// Load reconstructs a full Session including its recipients.
func (r *Repository) Load(ctx context.Context, id string) (*campaign.Session, error) {
	var model SessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, campaign.ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var recipients []RecipientModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("recipient_idx ASC").
		Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("load recipients for %s: %w", id, err)
	}

	return toDomainSession(&model, recipients), nil
}

// LoadActive returns the single sending/paused session, if any.
func (r *Repository) LoadActive(ctx context.Context) (*campaign.Session, error) {
	var model SessionModel
	err := r.db.WithContext(ctx).
		Where("processing_status IN ?", []string{string(campaign.StatusSending), string(campaign.StatusPaused)}).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, campaign.ErrNotFound
		}
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return r.Load(ctx, model.SessionID)
}

// ListScheduled returns every `scheduled` session, used by the Scheduler
// to rebuild its fire heap after a cold start.
func (r *Repository) ListScheduled(ctx context.Context) ([]*campaign.Session, error) {
	var models []SessionModel
	err := r.db.WithContext(ctx).
		Where("processing_status = ?", string(campaign.StatusScheduled)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list scheduled sessions: %w", err)
	}

	out := make([]*campaign.Session, 0, len(models))
	for i := range models {
		s, err := r.Load(ctx, models[i].SessionID)
		if err != nil {
			return nil, fmt.Errorf("load scheduled session %s: %w", models[i].SessionID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// AcquireLease grants exclusive ownership via a Redis SETNX+TTL, per §4.1.
func (r *Repository) AcquireLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	key := cache.SessionLease.Key(sessionID)
	ok, err := r.cache.SetNX(ctx, key, ownerID, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", sessionID, err)
	}
	if ok {
		return true, nil
	}

	holder, err := r.cache.Get(ctx, key)
	if err == nil && holder == ownerID {
		// Already ours (e.g. re-acquiring after a crash before TTL
		// expired); refresh the TTL.
		if err := r.cache.Set(ctx, key, ownerID, ttl); err != nil {
			return false, fmt.Errorf("refresh lease %s: %w", sessionID, err)
		}
		return true, nil
	}
	return false, nil
}

// ReleaseLease gives up ownership early.
func (r *Repository) ReleaseLease(ctx context.Context, sessionID, ownerID string) error {
	key := cache.SessionLease.Key(sessionID)
	holder, err := r.cache.Get(ctx, key)
	if err != nil {
		// Already gone or expired; nothing to release.
		return nil
	}
	if holder != ownerID {
		return nil
	}
	return r.cache.Del(ctx, key)
}

// Checkpoint performs the partial update described in §4.1.
func (r *Repository) Checkpoint(ctx context.Context, sessionID string, c campaign.Checkpoint) error {
	updates := map[string]interface{}{
		"last_processed_index": c.LastProcessedIndex,
		"sent_count":           c.SentCount,
		"failed_count":         c.FailedCount,
		"skipped_count":        c.SkippedCount,
		"processing_status":    string(c.ProcessingStatus),
		"updated_at":           time.Now(),
	}
	err := r.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("checkpoint session %s: %w", sessionID, err)
	}
	return nil
}

// Clear removes a session and its recipients/outbound messages.
func (r *Repository) Clear(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&OutboundMessageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&RecipientModel{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&SessionModel{}).Error
	})
}

// SaveOutbound upserts a single OutboundMessage row.
func (r *Repository) SaveOutbound(ctx context.Context, m *campaign.OutboundMessage) error {
	model := fromDomainOutbound(m)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "msg_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "retry_count", "next_retry_at", "error_code", "error_message", "sent_at", "delivered_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("save outbound message %s: %w", m.MsgID, err)
	}
	return nil
}

// LoadOutbound fetches a single OutboundMessage by msgId.
func (r *Repository) LoadOutbound(ctx context.Context, msgID string) (*campaign.OutboundMessage, error) {
	var model OutboundMessageModel
	if err := r.db.WithContext(ctx).Where("msg_id = ?", msgID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, campaign.ErrNotFound
		}
		return nil, fmt.Errorf("load outbound message %s: %w", msgID, err)
	}
	return toDomainOutbound(&model), nil
}

// ClearExhausted bulk-deletes EXHAUSTED outbound messages for a session.
func (r *Repository) ClearExhausted(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, string(campaign.MsgExhausted)).
		Delete(&OutboundMessageModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("clear exhausted for %s: %w", sessionID, result.Error)
	}
	return result.RowsAffected, nil
}

// DrainDue implements retryqueue.Store: SELECT ... FOR UPDATE SKIP LOCKED
// over PENDING_RETRY rows due by now.
func (r *Repository) DrainDue(ctx context.Context, sessionID string, now time.Time) ([]*campaign.OutboundMessage, error) {
	var models []OutboundMessageModel

	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ? AND next_retry_at <= ?", sessionID, string(campaign.MsgPendingRetry), now).
		Order("next_retry_at ASC").
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("drain due retries for %s: %w", sessionID, err)
	}

	out := make([]*campaign.OutboundMessage, len(models))
	for i := range models {
		out[i] = toDomainOutbound(&models[i])
	}
	return out, nil
}

// PurgeSession deletes all PENDING_RETRY rows for a session (stop §4.7).
func (r *Repository) PurgeSession(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, string(campaign.MsgPendingRetry)).
		Delete(&OutboundMessageModel{}).Error
	if err != nil {
		return fmt.Errorf("purge retry queue for %s: %w", sessionID, err)
	}
	return nil
}

// HasDueWithinGrace checks whether any PENDING_RETRY row will come due
// within the grace window, for the §4.7 step-4 drain.
func (r *Repository) HasDueWithinGrace(ctx context.Context, sessionID string, now time.Time, grace time.Duration) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&OutboundMessageModel{}).
		Where("session_id = ? AND status = ? AND next_retry_at <= ?", sessionID, string(campaign.MsgPendingRetry), now.Add(grace)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check due-within-grace for %s: %w", sessionID, err)
	}
	return count > 0, nil
}

var _ campaign.Store = (*Repository)(nil)
var _ retryqueue.Store = (*Repository)(nil)

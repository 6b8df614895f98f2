// Package sessiongorm is the GORM-backed implementation of campaign.Store
// (C1 SessionStore): model struct tags, TableName overrides, UUID primary
// keys and SELECT ... FOR UPDATE SKIP LOCKED over the Session/Recipient/
// OutboundMessage trio.
package sessiongorm

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SessionModel maps to the "campaign_sessions" table.
type SessionModel struct {
	SessionID        string `gorm:"type:uuid;primaryKey"`
	FileName         string `gorm:"size:255"`
	Template         string `gorm:"type:text;not null"`
	SendSpeed        int    `gorm:"not null"`
	SimSlot          int
	CampaignName     string `gorm:"size:255"`
	CampaignType     string `gorm:"size:20;not null"`
	LastProcessedIndex int  `gorm:"not null;default:0"`
	SentCount        int    `gorm:"not null;default:0"`
	FailedCount      int    `gorm:"not null;default:0"`
	SkippedCount     int    `gorm:"not null;default:0"`
	ProcessingStatus string `gorm:"size:20;not null;index"`
	ScheduledAt      *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (SessionModel) TableName() string { return "campaign_sessions" }

// RecipientModel maps to the "campaign_recipients" table. Recipients are
// immutable once created (§3), so there is no UpdatedAt.
type RecipientModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"type:uuid;index;not null"`
	RecipientIdx int    `gorm:"not null"`
	RecipientID  string `gorm:"size:100;not null"`
	Phone        string `gorm:"size:32;not null"`
	Name         string `gorm:"size:255"`
	Amount       string `gorm:"size:64"`
	FieldsJSON   string `gorm:"type:text"`
	CreatedAt    time.Time
}

func (RecipientModel) TableName() string { return "campaign_recipients" }

func (m RecipientModel) Fields() map[string]string {
	out := map[string]string{}
	if m.FieldsJSON == "" {
		return out
	}
	_ = json.Unmarshal([]byte(m.FieldsJSON), &out)
	return out
}

func marshalFields(f map[string]string) string {
	if len(f) == 0 {
		return ""
	}
	b, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(b)
}

// OutboundMessageModel maps to the "outbound_messages" table, indexed on
// (status, nextRetryAt) per §6 so RetryQueue.DrainDue is an index scan.
type OutboundMessageModel struct {
	MsgID          string `gorm:"type:uuid;primaryKey"`
	SessionID      string `gorm:"type:uuid;index;not null"`
	RecipientIndex int    `gorm:"not null"`
	Phone          string `gorm:"size:32;not null"`
	Body           string `gorm:"type:text"`
	SimSlot        int
	Status         string     `gorm:"size:20;not null;index:idx_status_next_retry"`
	RetryCount     int        `gorm:"not null;default:0"`
	NextRetryAt    *time.Time `gorm:"index:idx_status_next_retry"`
	ErrorCode      string     `gorm:"size:64"`
	ErrorMessage   string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"not null"`
	SentAt         *time.Time
	DeliveredAt    *time.Time
}

func (OutboundMessageModel) TableName() string { return "outbound_messages" }

package campaign

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the lifecycle state of one OutboundMessage (one send
// attempt for one recipient). A recipient may have several if retried.
type MessageStatus string

const (
	MsgPending      MessageStatus = "PENDING"
	MsgSent         MessageStatus = "SENT"
	MsgDelivered    MessageStatus = "DELIVERED"
	MsgFailed       MessageStatus = "FAILED"
	MsgExhausted    MessageStatus = "EXHAUSTED"
	MsgPendingRetry MessageStatus = "PENDING_RETRY"
)

// IsTerminal reports whether a status is one of the three terminal states
// named in §8: exactly one of {SENT, FAILED, EXHAUSTED} is terminal for any
// given msgId (DELIVERED is a refinement of SENT reached asynchronously,
// not a replacement for it as the attempt's terminal send-outcome).
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MsgSent, MsgFailed, MsgExhausted, MsgDelivered:
		return true
	}
	return false
}

// OutboundMessage is one attempt to deliver a rendered body to a recipient.
type OutboundMessage struct {
	MsgID          string
	SessionID      string
	RecipientIndex int
	Phone          string
	Body           string
	SimSlot        int
	Status         MessageStatus
	RetryCount     int
	NextRetryAt    *time.Time
	ErrorCode      string
	ErrorMessage   string
	CreatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
}

// NewOutboundMessage creates a PENDING attempt with a fresh msgId, generated
// by the executor before handing the message to Transport (§4.6 correlation).
func NewOutboundMessage(sessionID string, recipientIndex int, phone, body string, simSlot int) *OutboundMessage {
	return &OutboundMessage{
		MsgID:          uuid.New().String(),
		SessionID:      sessionID,
		RecipientIndex: recipientIndex,
		Phone:          phone,
		Body:           body,
		SimSlot:        simSlot,
		Status:         MsgPending,
		CreatedAt:      time.Now(),
	}
}

// MarkSent transitions PENDING -> SENT after a transport ack.
func (m *OutboundMessage) MarkSent() {
	now := time.Now()
	m.SentAt = &now
	m.Status = MsgSent
}

// MarkDelivered transitions SENT -> DELIVERED on a delivery report.
func (m *OutboundMessage) MarkDelivered(at time.Time) {
	m.DeliveredAt = &at
	m.Status = MsgDelivered
}

// MarkFailed transitions to FAILED for a permanent error (no retry).
func (m *OutboundMessage) MarkFailed(code, msg string) {
	m.Status = MsgFailed
	m.ErrorCode = code
	m.ErrorMessage = msg
}

// MarkRetry schedules a transient-failure retry at nextRetryAt with an
// incremented retry count.
func (m *OutboundMessage) MarkRetry(nextRetryAt time.Time, code, msg string) {
	m.Status = MsgPendingRetry
	m.RetryCount++
	m.NextRetryAt = &nextRetryAt
	m.ErrorCode = code
	m.ErrorMessage = msg
}

// MarkExhausted transitions to EXHAUSTED once the retry budget is spent.
func (m *OutboundMessage) MarkExhausted() {
	m.Status = MsgExhausted
}

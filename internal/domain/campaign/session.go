package campaign

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category is the regulatory/compliance category of a campaign, per §4.2/§4.3.
type Category string

const (
	CategoryMarketing     Category = "MARKETING"
	CategoryTransactional Category = "TRANSACTIONAL"
	CategoryService       Category = "SERVICE"
)

// Status is a Session's processing status. Transitions follow the diagram
// in §4.7.
type Status string

const (
	StatusReady     Status = "ready"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrEmptyTemplate     = errors.New("campaign template is required")
	ErrNoRecipients      = errors.New("campaign recipients list is empty")
	ErrInvalidSendSpeed  = errors.New("sendSpeed must be positive")
	ErrIndexOutOfRange   = errors.New("lastProcessedIndex exceeds recipient count")
	ErrInvariantViolated = errors.New("session counters do not sum to lastProcessedIndex")
)

// validTransitions enumerates the state machine edges from §4.7.
var validTransitions = map[Status]map[Status]bool{
	StatusReady:     {StatusSending: true, StatusScheduled: true},
	StatusScheduled: {StatusSending: true},
	StatusSending:   {StatusPaused: true, StatusStopped: true, StatusCompleted: true, StatusFailed: true},
	StatusPaused:    {StatusSending: true, StatusStopped: true},
	StatusStopped:   {},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to Status) bool {
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Session is one logical campaign: recipients + template + settings + progress.
type Session struct {
	SessionID   string
	FileName    string
	Recipients  []Recipient
	Template    string
	SendSpeed   int // messages/hour
	SimSlot     int
	CampaignName string
	CampaignType Category

	LastProcessedIndex int
	SentCount          int
	FailedCount        int
	SkippedCount       int
	ProcessingStatus   Status

	ScheduledAt *time.Time // epoch-ms wall clock, nil if not scheduled
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSession constructs a Session in the `ready` state and enforces the
// basic domain rules from §7 (InvalidInput): non-empty template, non-empty
// recipients, positive sendSpeed.
func NewSession(fileName, template string, recipients []Recipient, sendSpeed int, campaignName string, campaignType Category) (*Session, error) {
	if template == "" {
		return nil, ErrEmptyTemplate
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if sendSpeed <= 0 {
		return nil, ErrInvalidSendSpeed
	}

	now := time.Now()

	return &Session{
		SessionID:        uuid.New().String(),
		FileName:         fileName,
		Recipients:       recipients,
		Template:         template,
		SendSpeed:        sendSpeed,
		CampaignName:     campaignName,
		CampaignType:     campaignType,
		ProcessingStatus: StatusReady,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CheckInvariants validates the §3 invariants that must hold after every
// checkpoint.
func (s *Session) CheckInvariants() error {
	if s.LastProcessedIndex > len(s.Recipients) {
		return ErrIndexOutOfRange
	}
	if s.SentCount+s.FailedCount+s.SkippedCount != s.LastProcessedIndex {
		return ErrInvariantViolated
	}
	return nil
}

// Transition moves the session to a new status, rejecting illegal edges.
func (s *Session) Transition(to Status) error {
	if !CanTransition(s.ProcessingStatus, to) {
		return errors.New("illegal transition from " + string(s.ProcessingStatus) + " to " + string(to))
	}
	s.ProcessingStatus = to
	s.UpdatedAt = time.Now()
	return nil
}

// Progress is a snapshot of completion for the §6 progress event.
type Progress struct {
	SessionID string
	Processed int
	Total     int
	Sent      int
	Failed    int
	Skipped   int
	Percent   float64
}

// ProgressSnapshot derives the current Progress from Session state.
func (s *Session) ProgressSnapshot() Progress {
	total := len(s.Recipients)
	pct := 0.0
	if total > 0 {
		pct = float64(s.LastProcessedIndex) / float64(total) * 100
	}
	return Progress{
		SessionID: s.SessionID,
		Processed: s.LastProcessedIndex,
		Total:     total,
		Sent:      s.SentCount,
		Failed:    s.FailedCount,
		Skipped:   s.SkippedCount,
		Percent:   pct,
	}
}

// Checkpoint is the partial-update payload persisted by SessionStore.checkpoint.
type Checkpoint struct {
	LastProcessedIndex int
	SentCount          int
	FailedCount        int
	SkippedCount       int
	ProcessingStatus   Status
}

// ApplyCheckpoint mutates the in-memory session with a checkpoint payload.
func (s *Session) ApplyCheckpoint(c Checkpoint) {
	s.LastProcessedIndex = c.LastProcessedIndex
	s.SentCount = c.SentCount
	s.FailedCount = c.FailedCount
	s.SkippedCount = c.SkippedCount
	s.ProcessingStatus = c.ProcessingStatus
	s.UpdatedAt = time.Now()
}

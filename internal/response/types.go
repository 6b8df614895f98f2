package response

import (
	"time"

	"github.com/oggyb/bulksms/internal/delivery"
	"github.com/oggyb/bulksms/internal/domain/campaign"
)

type WelcomePayload struct {
	Message string `json:"message"`
}

type HealthPayload struct {
	Status string `json:"status"`
}

// SessionDTO is a public-facing representation of a campaign session. It
// decouples the wire format from the domain entity and plays nicely with
// Swagger.
type SessionDTO struct {
	SessionID          string     `json:"sessionId"`
	FileName           string     `json:"fileName"`
	CampaignName       string     `json:"campaignName"`
	CampaignType       string     `json:"campaignType"`
	Template           string     `json:"template"`
	SendSpeed          int        `json:"sendSpeed"`
	SimSlot            int        `json:"simSlot"`
	RecipientCount     int        `json:"recipientCount"`
	LastProcessedIndex int        `json:"lastProcessedIndex"`
	SentCount          int        `json:"sentCount"`
	FailedCount        int        `json:"failedCount"`
	SkippedCount       int        `json:"skippedCount"`
	ProcessingStatus   string     `json:"processingStatus"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// FromDomainSession converts a campaign.Session into its wire DTO.
func FromDomainSession(s *campaign.Session) SessionDTO {
	return SessionDTO{
		SessionID:          s.SessionID,
		FileName:           s.FileName,
		CampaignName:       s.CampaignName,
		CampaignType:       string(s.CampaignType),
		Template:           s.Template,
		SendSpeed:          s.SendSpeed,
		SimSlot:            s.SimSlot,
		RecipientCount:     len(s.Recipients),
		LastProcessedIndex: s.LastProcessedIndex,
		SentCount:          s.SentCount,
		FailedCount:        s.FailedCount,
		SkippedCount:       s.SkippedCount,
		ProcessingStatus:   string(s.ProcessingStatus),
		ScheduledAt:        s.ScheduledAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// StatsDTO mirrors delivery.Stats for API responses.
type StatsDTO struct {
	Total                    int     `json:"total"`
	Sent                     int     `json:"sent"`
	Delivered                int     `json:"delivered"`
	AssumedDelivered         int     `json:"assumedDelivered"`
	Failed                   int     `json:"failed"`
	Pending                  int     `json:"pending"`
	DeliveryRate             float64 `json:"deliveryRate"`
	AverageDeliveryLatencyMs int64   `json:"averageDeliveryLatencyMs"`
}

func FromDeliveryStats(s delivery.Stats) StatsDTO {
	return StatsDTO{
		Total:                    s.Total,
		Sent:                     s.Sent,
		Delivered:                s.Delivered,
		AssumedDelivered:         s.AssumedDelivered,
		Failed:                   s.Failed,
		Pending:                  s.Pending,
		DeliveryRate:             s.DeliveryRate,
		AverageDeliveryLatencyMs: s.AverageDeliveryLatencyMs,
	}
}

// ControlPayload is a generic acknowledgement for start/pause/resume/stop.
type ControlPayload struct {
	Message string `json:"message"`
}

// ClearExhaustedPayload reports how many EXHAUSTED rows were removed.
type ClearExhaustedPayload struct {
	Removed int64 `json:"removed"`
}

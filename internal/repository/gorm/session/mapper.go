package sessiongorm

import (
	"github.com/oggyb/bulksms/internal/domain/campaign"
)

func toDomainSession(m *SessionModel, recipients []Recipient) *campaign.Session {
	return &campaign.Session{
		SessionID:          m.SessionID,
		FileName:           m.FileName,
		Recipients:         toDomainRecipients(recipients),
		Template:           m.Template,
		SendSpeed:          m.SendSpeed,
		SimSlot:            m.SimSlot,
		CampaignName:       m.CampaignName,
		CampaignType:       campaign.Category(m.CampaignType),
		LastProcessedIndex: m.LastProcessedIndex,
		SentCount:          m.SentCount,
		FailedCount:        m.FailedCount,
		SkippedCount:       m.SkippedCount,
		ProcessingStatus:   campaign.Status(m.ProcessingStatus),
		ScheduledAt:        m.ScheduledAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func fromDomainSession(s *campaign.Session) *SessionModel {
	return &SessionModel{
		SessionID:          s.SessionID,
		FileName:           s.FileName,
		Template:           s.Template,
		SendSpeed:          s.SendSpeed,
		SimSlot:            s.SimSlot,
		CampaignName:       s.CampaignName,
		CampaignType:       string(s.CampaignType),
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

// Recipient is an alias used so this file doesn't need to import itself;
// kept distinct from RecipientModel to make the mapping direction explicit.
type Recipient = RecipientModel

func toDomainRecipients(models []Recipient) []campaign.Recipient {
	out := make([]campaign.Recipient, len(models))
	for i, m := range models {
		out[i] = campaign.Recipient{
			ID:     m.RecipientID,
			Phone:  m.Phone,
			Name:   m.Name,
			Amount: m.Amount,
			Fields: m.Fields(),
		}
	}
	return out
}

func fromDomainRecipients(sessionID string, recipients []campaign.Recipient) []RecipientModel {
	out := make([]RecipientModel, len(recipients))
	for i, r := range recipients {
		out[i] = RecipientModel{
			SessionID:    sessionID,
			RecipientIdx: i,
			RecipientID:  r.ID,
			Phone:        r.Phone,
			Name:         r.Name,
			Amount:       r.Amount,
			FieldsJSON:   marshalFields(r.Fields),
		}
	}
	return out
}

func toDomainOutbound(m *OutboundMessageModel) *campaign.OutboundMessage {
	return &campaign.OutboundMessage{
		MsgID:          m.MsgID,
		SessionID:      m.SessionID,
		RecipientIndex: m.RecipientIndex,
		Phone:          m.Phone,
		Body:           m.Body,
		SimSlot:        m.SimSlot,
		Status:         campaign.MessageStatus(m.Status),
		RetryCount:     m.RetryCount,
		NextRetryAt:    m.NextRetryAt,
		ErrorCode:      m.ErrorCode,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      m.CreatedAt,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
	}
}

func fromDomainOutbound(m *campaign.OutboundMessage) *OutboundMessageModel {
	return &OutboundMessageModel{
		MsgID:          m.MsgID,
		SessionID:      m.SessionID,
		RecipientIndex: m.RecipientIndex,
		Phone:          m.Phone,
		Body:           m.Body,
		SimSlot:        m.SimSlot,
		Status:         string(m.Status),
		RetryCount:     m.RetryCount,
		NextRetryAt:    m.NextRetryAt,
		ErrorCode:      m.ErrorCode,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      m.CreatedAt,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oggyb/bulksms/internal/apperr"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/events"
	"github.com/oggyb/bulksms/internal/request"
	"github.com/oggyb/bulksms/internal/response"
	"github.com/oggyb/bulksms/internal/service"
	"github.com/oggyb/bulksms/internal/template"
)

// CampaignHandler wires the §6 control surface to HTTP: create, start,
// schedule, pause, resume, stop, opt-out and clear-exhausted, plus a
// stats snapshot and an SSE progress/event stream.
type CampaignHandler struct {
	svc *service.CampaignService
}

// NewCampaignHandler constructs a new CampaignHandler.
func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

// CreateSession godoc
// @Summary     Create a campaign session
// @Description Validates and persists a new campaign in the `ready` state.
// @Tags        campaigns
// @Accept      json
// @Produce     json
// @Param       request body request.CreateSessionRequest true "New campaign"
// @Success     201 {object} response.SessionDTO
// @Failure     400 {object} map[string]string
// @Router      /campaigns [post]
func (h *CampaignHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	recipients := make([]campaign.Recipient, len(req.Recipients))
	for i, rp := range req.Recipients {
		recipients[i] = campaign.Recipient{
			ID:     rp.Phone,
			Phone:  rp.Phone,
			Name:   rp.Name,
			Amount: rp.Amount,
			Fields: rp.Fields,
		}
	}

	session, err := h.svc.CreateSession(r.Context(), req.FileName, req.Template, recipients, req.SendSpeed, req.CampaignName, campaign.Category(req.CampaignType))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, response.FromDomainSession(session))
}

// GetSession godoc
// @Summary     Get a campaign session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.SessionDTO
// @Failure     404 {object} map[string]string
// @Router      /campaigns/{id} [get]
func (h *CampaignHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainSession(session))
}

// GetActive godoc
// @Summary     Get the currently active (sending/paused) session, if any
// @Description Backs a host's "resume previous campaign?" prompt on cold start.
// @Tags        campaigns
// @Produce     json
// @Success     200 {object} response.SessionDTO
// @Failure     404 {object} map[string]string
// @Router      /campaigns/active [get]
func (h *CampaignHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.LoadActive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainSession(session))
}

// Start godoc
// @Summary     Start a campaign session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/start [post]
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Start(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "session started"})
}

// Schedule godoc
// @Summary     Schedule a campaign session to fire later
// @Tags        campaigns
// @Accept      json
// @Produce     json
// @Param       id      path string                      true "Session ID"
// @Param       request body request.ScheduleRequest true "Fire time"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/schedule [post]
func (h *CampaignHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req request.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fireAt := time.UnixMilli(req.FireAtEpochMs)
	if err := h.svc.Schedule(r.Context(), id, fireAt, req.Timezone); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "session scheduled"})
}

// Pause godoc
// @Summary     Pause a running campaign session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/pause [post]
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Pause(id); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "session paused"})
}

// Resume godoc
// @Summary     Resume a paused campaign session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/resume [post]
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Resume(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "session resumed"})
}

// Stop godoc
// @Summary     Stop a campaign session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/stop [post]
func (h *CampaignHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Stop(id); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "session stopped"})
}

// ClearExhausted godoc
// @Summary     Delete EXHAUSTED outbound messages for a session
// @Tags        campaigns
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200 {object} response.ClearExhaustedPayload
// @Failure     400 {object} map[string]string
// @Router      /campaigns/{id}/clear-exhausted [post]
func (h *CampaignHandler) ClearExhausted(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := h.svc.ClearExhausted(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ClearExhaustedPayload{Removed: n})
}

// AddOptOut godoc
// @Summary     Record an opt-out
// @Tags        optouts
// @Accept      json
// @Produce     json
// @Param       request body request.OptOutRequest true "Opt-out"
// @Success     200 {object} response.ControlPayload
// @Failure     400 {object} map[string]string
// @Router      /optouts [post]
func (h *CampaignHandler) AddOptOut(w http.ResponseWriter, r *http.Request) {
	var req request.OptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.AddOptOut(r.Context(), req.Phone, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.ControlPayload{Message: "opt-out recorded"})
}

// Stats godoc
// @Summary     Current DeliveryStats snapshot
// @Tags        campaigns
// @Produce     json
// @Success     200 {object} response.StatsDTO
// @Router      /stats [get]
func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.RespondJSON(w, http.StatusOK, response.FromDeliveryStats(h.svc.Stats()))
}

// Events godoc
// @Summary     Stream the §6 progress/event feed for a session via SSE
// @Tags        campaigns
// @Produce     text/event-stream
// @Param       id path string true "Session ID"
// @Router      /campaigns/{id}/events [get]
func (h *CampaignHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsubscribe := h.svc.Subscribe(32)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if !belongsTo(ev, id) {
				continue
			}
			raw, err := json.Marshal(ev.Payload)
			if err != nil {
				continue
			}
			w.Write([]byte("event: " + string(ev.Kind) + "\n"))
			w.Write([]byte("data: "))
			w.Write(raw)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// belongsTo filters the process-wide event bus down to one session's
// feed. Statistics events carry no sessionId (they are a process-global
// DeliveryStats snapshot, §4.6) and are always forwarded.
func belongsTo(ev events.Event, sessionID string) bool {
	switch p := ev.Payload.(type) {
	case events.ProgressPayload:
		return p.SessionID == sessionID
	case events.SessionStateChangedPayload:
		return p.SessionID == sessionID
	case events.ErrorPayload:
		return p.SessionID == sessionID
	case template.MissingVariable:
		return p.SessionID == sessionID
	default:
		return true
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindInvalidInput:
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		case apperr.KindStorage, apperr.KindFatalPanic:
			response.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if errors.Is(err, campaign.ErrNotFound) {
		response.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	response.RespondError(w, http.StatusBadRequest, err.Error())
}

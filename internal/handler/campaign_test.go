package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
	"github.com/oggyb/bulksms/internal/request"
	"github.com/oggyb/bulksms/internal/response"
	"github.com/oggyb/bulksms/internal/service"
	"github.com/oggyb/bulksms/internal/transport"
)

func newTestHandler(t *testing.T) *CampaignHandler {
	t.Helper()
	store := campaign.NewMemoryStore()
	optouts := optout.NewMemoryRepository()
	xport := transport.NewFakeTransport()
	cfg := config.New()
	svc := service.New(store, optouts, xport, cfg, "test-owner", nil)
	return NewCampaignHandler(svc)
}

func createTestSession(t *testing.T, h *CampaignHandler) response.SessionDTO {
	t.Helper()
	body := request.CreateSessionRequest{
		FileName:     "list.csv",
		Template:     "hi {{name}}",
		SendSpeed:    1000,
		CampaignName: "welcome",
		CampaignType: "TRANSACTIONAL",
		Recipients:   []request.RecipientPayload{{Phone: "+14155552671", Name: "Ana"}},
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader(raw))
	w := httptest.NewRecorder()

	h.CreateSession(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var dto response.SessionDTO
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return dto
}

func TestCampaignHandler_CreateSessionReturns201(t *testing.T) {
	h := newTestHandler(t)
	dto := createTestSession(t, h)

	if dto.SessionID == "" || dto.ProcessingStatus != "ready" {
		t.Fatalf("unexpected session DTO: %+v", dto)
	}
}

func TestCampaignHandler_CreateSessionRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	h.CreateSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCampaignHandler_GetSessionNotFoundReturns404(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	h.GetSession(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCampaignHandler_StartThenStop(t *testing.T) {
	h := newTestHandler(t)
	dto := createTestSession(t, h)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/"+dto.SessionID+"/start", nil)
	req.SetPathValue("id", dto.SessionID)
	w := httptest.NewRecorder()
	h.Start(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from Start, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/campaigns/"+dto.SessionID+"/stop", nil)
	req.SetPathValue("id", dto.SessionID)
	w = httptest.NewRecorder()
	h.Stop(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from Stop, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCampaignHandler_AddOptOutRejectsInvalidPhone(t *testing.T) {
	h := newTestHandler(t)

	body, _ := json.Marshal(request.OptOutRequest{Phone: "not-a-phone", Reason: "stop"})
	req := httptest.NewRequest(http.MethodPost, "/optouts", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.AddOptOut(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCampaignHandler_StatsReturnsSnapshot(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var dto response.StatsDTO
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

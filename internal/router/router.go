package routes

import (
	"net/http"

	_ "github.com/oggyb/bulksms/internal/docs" // swagger docs
	"github.com/oggyb/bulksms/internal/response"
	swaggerHandler "github.com/swaggo/http-swagger"
)

type AppDeps struct {
	Home     HomeHandler
	Campaign CampaignHandler
	Webhook  WebhookHandler
}

type HomeHandler interface {
	Index(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

// CampaignHandler exposes the §6 control surface plus the supplemented
// stats/events read paths.
type CampaignHandler interface {
	CreateSession(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	GetActive(w http.ResponseWriter, r *http.Request)
	Start(w http.ResponseWriter, r *http.Request)
	Schedule(w http.ResponseWriter, r *http.Request)
	Pause(w http.ResponseWriter, r *http.Request)
	Resume(w http.ResponseWriter, r *http.Request)
	Stop(w http.ResponseWriter, r *http.Request)
	ClearExhausted(w http.ResponseWriter, r *http.Request)
	AddOptOut(w http.ResponseWriter, r *http.Request)
	Stats(w http.ResponseWriter, r *http.Request)
	Events(w http.ResponseWriter, r *http.Request)
}

// WebhookHandler receives the Transport provider's asynchronous delivery
// report callbacks.
type WebhookHandler interface {
	ReceiveDeliveryReport(w http.ResponseWriter, r *http.Request)
}

func Register(mux *http.ServeMux, d AppDeps) {
	mux.HandleFunc("GET /{$}", d.Home.Index)
	mux.HandleFunc("GET /health", d.Home.Health)

	mux.HandleFunc("POST /campaigns", d.Campaign.CreateSession)
	mux.HandleFunc("GET /campaigns/active", d.Campaign.GetActive)
	mux.HandleFunc("GET /campaigns/{id}", d.Campaign.GetSession)
	mux.HandleFunc("POST /campaigns/{id}/start", d.Campaign.Start)
	mux.HandleFunc("POST /campaigns/{id}/schedule", d.Campaign.Schedule)
	mux.HandleFunc("POST /campaigns/{id}/pause", d.Campaign.Pause)
	mux.HandleFunc("POST /campaigns/{id}/resume", d.Campaign.Resume)
	mux.HandleFunc("POST /campaigns/{id}/stop", d.Campaign.Stop)
	mux.HandleFunc("POST /campaigns/{id}/clear-exhausted", d.Campaign.ClearExhausted)
	mux.HandleFunc("GET /campaigns/{id}/events", d.Campaign.Events)

	mux.HandleFunc("POST /optouts", d.Campaign.AddOptOut)
	mux.HandleFunc("GET /stats", d.Campaign.Stats)

	mux.HandleFunc("POST /webhook/delivery-report", d.Webhook.ReceiveDeliveryReport)

	//Swagger
	mux.HandleFunc("GET /swagger/", swaggerHandler.WrapHandler)

	// Fallback handler for undefined routes (404)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.RespondError(w, http.StatusNotFound, "route not found")
	}))
}

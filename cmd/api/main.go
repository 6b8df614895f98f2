package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/bulksms/internal/cache/redis"
	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/db/gormdb"
	"github.com/oggyb/bulksms/internal/handler"
	optoutgorm "github.com/oggyb/bulksms/internal/repository/gorm/optout"
	sessiongorm "github.com/oggyb/bulksms/internal/repository/gorm/session"
	routes "github.com/oggyb/bulksms/internal/router"
	"github.com/oggyb/bulksms/internal/server"
	"github.com/oggyb/bulksms/internal/service"
	"github.com/oggyb/bulksms/internal/transport"
	"gorm.io/gorm"
)

func main() {
	// Base context for the whole application lifetime.
	rootCtx := context.Background()

	// Load configuration from environment/.env.
	cfg := config.New()

	// Init cache.
	cache := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := cache.Ping(rootCtx); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	// Init DB.
	dsn := cfg.PostgresDSN()
	db, err := gormdb.New(dsn)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}

	rawDB := db.Conn().(*gorm.DB)
	if err := rawDB.AutoMigrate(
		&sessiongorm.SessionModel{},
		&sessiongorm.RecipientModel{},
		&sessiongorm.OutboundMessageModel{},
		&optoutgorm.OptOutModel{},
		&optoutgorm.ConsentModel{},
	); err != nil {
		log.Fatalf("failed to auto-migrate: %v", err)
	}

	// Init transport (the provider calls back into xport.ReceiveDeliveryReport).
	xport := transport.NewWebhookTransport(cfg.SMS.ProviderURL, cfg.SMS.ProviderKey, cfg.Transport.AckTimeout)
	if err := xport.Health(rootCtx); err != nil {
		log.Printf("[Main] SMS provider health check failed, continuing anyway: %v", err)
	}

	// Init repositories.
	sessionRepo := sessiongorm.NewRepository(db, cache)
	optoutRepo := optoutgorm.NewRepository(db)

	ownerID, err := os.Hostname()
	if err != nil || ownerID == "" {
		ownerID = "bulksms-api"
	}

	// Wire the control-surface service: this starts the scheduler and the
	// assumed-delivery sweep loop.
	svc := service.New(sessionRepo, optoutRepo, xport, cfg, ownerID, cache)

	// HTTP dependencies & server wiring.
	homeHandler := handler.NewHomeHandler()
	campaignHandler := handler.NewCampaignHandler(svc)

	deps := routes.AppDeps{
		Home:     homeHandler,
		Campaign: campaignHandler,
		Webhook:  xport,
	}

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	srv := server.New(addr, deps)

	// Create a context that is cancelled on SIGINT/SIGTERM (Ctrl+C, docker stop etc.).
	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the HTTP server in a separate goroutine so we can listen for signals.
	go func() {
		log.Printf("HTTP server listening on %s", addr)

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Block until we receive a shutdown signal.
	<-ctx.Done()
	log.Println("[Main] Shutdown signal received, starting graceful shutdown...")

	// Give components some time to shut down cleanly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("[Main] Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] HTTP server graceful shutdown failed: %v", err)
	} else {
		log.Println("[Main] HTTP server stopped.")
	}

	log.Println("[Main] Shutdown complete.")
}

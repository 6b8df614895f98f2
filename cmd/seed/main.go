package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	memorycache "github.com/oggyb/bulksms/internal/cache/memory"
	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/db/gormdb"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
	optoutgorm "github.com/oggyb/bulksms/internal/repository/gorm/optout"
	sessiongorm "github.com/oggyb/bulksms/internal/repository/gorm/session"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()

	// Load application configuration (DB, Redis, etc.) from env/.env.
	cfg := config.New()

	// Open a Postgres connection through our GORM adapter.
	gormAdapter, err := gormdb.New(cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("[Seed] Failed to connect to database: %v", err)
	}

	log.Printf("[Seed] Connected to database %q", cfg.DB.Name)

	// AutoMigrate: make sure the campaign tables exist.
	rawDB := gormAdapter.Conn().(*gorm.DB)
	if err := rawDB.AutoMigrate(
		&sessiongorm.SessionModel{},
		&sessiongorm.RecipientModel{},
		&sessiongorm.OutboundMessageModel{},
		&optoutgorm.OptOutModel{},
		&optoutgorm.ConsentModel{},
	); err != nil {
		log.Fatalf("[Seed] AutoMigrate failed: %v", err)
	}
	log.Println("[Seed] Campaign tables are up to date (AutoMigrate completed).")

	// Local seeding doesn't need a real Redis lease store.
	sessionRepo := sessiongorm.NewRepository(gormAdapter, memorycache.New())
	optoutRepo := optoutgorm.NewRepository(gormAdapter)

	// 1) Seed a handful of ready campaign sessions, one per category.
	categories := []campaign.Category{campaign.CategoryMarketing, campaign.CategoryTransactional, campaign.CategoryService}

	for _, cat := range categories {
		recipients := randomRecipients(10)
		session, err := campaign.NewSession(
			fmt.Sprintf("%s-list.csv", cat),
			"Hi {{name}}, your {{amount}} payment is due.",
			recipients,
			60,
			fmt.Sprintf("Seed %s campaign", cat),
			cat,
		)
		if err != nil {
			log.Fatalf("[Seed] Failed to build session: %v", err)
		}

		if err := sessionRepo.Save(ctx, session); err != nil {
			log.Fatalf("[Seed] Failed to save session: %v", err)
		}
		log.Printf("[Seed] Created session id=%s category=%s recipients=%d", session.SessionID, cat, len(recipients))
	}

	// 2) Seed a few opt-outs so ComplianceGate has something to reject.
	for i := 0; i < 3; i++ {
		rec := optout.Record{Phone: randomPhone(), Reason: "seed STOP keyword"}
		if err := optoutRepo.Add(ctx, rec); err != nil {
			log.Fatalf("[Seed] Failed to save opt-out: %v", err)
		}
		log.Printf("[Seed] Recorded opt-out phone=%s", rec.Phone)
	}

	log.Println("[Seed] Done.")
}

// randomRecipients generates n fake recipients in an E.164-like format.
func randomRecipients(n int) []campaign.Recipient {
	out := make([]campaign.Recipient, n)
	for i := range out {
		phone := randomPhone()
		out[i] = campaign.Recipient{
			ID:     phone,
			Phone:  phone,
			Name:   fmt.Sprintf("Recipient %d", i+1),
			Amount: fmt.Sprintf("%d.00", 500+i*37),
		}
	}
	return out
}

// randomPhone generates a simple fake phone number in an E.164-like format.
// Example output: +254712345678
func randomPhone() string {
	base := "+2547"
	n := rand.Intn(90000000) + 10000000 // 8 digits
	return fmt.Sprintf("%s%d", base, n)
}

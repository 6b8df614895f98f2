// Package service wires C1-C8 behind the §6 control surface. CampaignService
// is the single entry point the HTTP layer (internal/handler) drives a
// campaign through; it owns no mutable state of its own beyond the
// collaborators it constructs: one struct holding its dependencies, a
// constructor that applies config, and thin methods that delegate to
// them.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oggyb/bulksms/internal/apperr"
	"github.com/oggyb/bulksms/internal/cache"
	"github.com/oggyb/bulksms/internal/compliance"
	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/delivery"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/domain/optout"
	"github.com/oggyb/bulksms/internal/events"
	"github.com/oggyb/bulksms/internal/executor"
	"github.com/oggyb/bulksms/internal/ratelimiter"
	"github.com/oggyb/bulksms/internal/retryqueue"
	"github.com/oggyb/bulksms/internal/scheduler"
	"github.com/oggyb/bulksms/internal/template"
	"github.com/oggyb/bulksms/internal/transport"
)

// CampaignService is the control-surface implementation: start(sessionId),
// schedule(sessionId, at), pause(sessionId), resume(sessionId),
// stop(sessionId), addOptOut(phone, reason), clearExhausted(sessionId).
type CampaignService struct {
	store   campaign.Store
	optouts optout.Repository
	gate    *compliance.Gate
	tracker *delivery.Tracker
	bus     *events.Bus
	exec    *executor.Manager
	sched   scheduler.SchedulerService
	cfg     *config.Config
}

// New constructs every C1-C8 collaborator from config, starts the C8
// scheduler loop and a background C6 assumed-delivery sweep, and returns
// the wired service. ownerID identifies this process for §4.1 session
// leases (e.g. hostname or pod name). c is an optional cross-process cache
// (e.g. Redis); nil disables its purely-diagnostic supplemental mirrors.
func New(store campaign.Store, optouts optout.Repository, xport transport.Transport, cfg *config.Config, ownerID string, c cache.Cache) *CampaignService {
	bus := events.NewBus()
	gate := compliance.New(optouts, cfg.Compliance.RequireConsentForMarketing)
	limiter := ratelimiter.New(*cfg, c)
	renderer := template.New()
	tracker := delivery.New(cfg.Transport.DeliveryTimeout, bus, c)

	retry := retryqueue.New(store, retryqueue.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        cfg.Retry.BaseDelay,
		Cap:         cfg.Retry.CapDelay,
		Jitter:      cfg.Retry.Jitter,
	})

	xport.OnDeliveryReport(func(r transport.DeliveryReport) {
		tracker.ReportDelivery(r.MsgID, "", "", r.Delivered, time.UnixMilli(r.At))
	})

	exec := executor.New(store, limiter, gate, renderer, retry, tracker, xport, bus, *cfg, ownerID)
	manager := executor.NewManager(exec, cfg.Executor.MaxParallelSessions)

	sched := scheduler.NewSchedulerService(manager, schedulerStore{store}, cfg.Scheduler.PollInterval)
	if err := sched.Start(); err != nil {
		log.Printf("[Service] scheduler did not start cleanly: %v", err)
	}

	svc := &CampaignService{
		store:   store,
		optouts: optouts,
		gate:    gate,
		tracker: tracker,
		bus:     bus,
		exec:    manager,
		sched:   sched,
		cfg:     cfg,
	}
	go svc.sweepLoop()
	return svc
}

// schedulerStore adapts campaign.Store.ListScheduled ([]*campaign.Session)
// to the scheduler package's own, domain-decoupled Store interface
// ([]scheduler.ScheduledSession), keeping the scheduler ignorant of the
// campaign domain entirely.
type schedulerStore struct {
	store campaign.Store
}

func (a schedulerStore) ListScheduled(ctx context.Context) ([]scheduler.ScheduledSession, error) {
	sessions, err := a.store.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.ScheduledSession, 0, len(sessions))
	for _, s := range sessions {
		fireAt := time.Now()
		if s.ScheduledAt != nil {
			fireAt = *s.ScheduledAt
		}
		out = append(out, scheduler.ScheduledSession{SessionID: s.SessionID, FireAt: fireAt, Timezone: "UTC"})
	}
	return out, nil
}

// sweepLoop periodically promotes SENT messages past the delivery timeout
// to DELIVERED_ASSUMED and republishes the statistics snapshot (§4.6),
// at the configured cadence.
func (s *CampaignService) sweepLoop() {
	interval := s.cfg.Stats.PublishInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if interval < 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for range t.C {
		s.tracker.SweepAssumedDelivered(time.Now())
		s.tracker.PublishStats()
	}
}

// CreateSession validates and persists a new campaign in the `ready`
// state. Not itself named in §6's control surface, but required for any
// host to have a session to call start/schedule on; NewSession enforces
// the §7 InvalidInput checks (empty template, empty recipients, bad
// sendSpeed) before anything is persisted.
func (s *CampaignService) CreateSession(ctx context.Context, fileName, tmpl string, recipients []campaign.Recipient, sendSpeed int, campaignName string, campaignType campaign.Category) (*campaign.Session, error) {
	session, err := campaign.NewSession(fileName, tmpl, recipients, sendSpeed, campaignName, campaignType)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidInput, apperr.KindInvalidInput, "create session", err)
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, apperr.New(apperr.CodeStorageWrite, apperr.KindStorage, "persist new session", err)
	}
	return session, nil
}

// Get returns a session by id.
func (s *CampaignService) Get(ctx context.Context, sessionID string) (*campaign.Session, error) {
	return s.store.Load(ctx, sessionID)
}

// LoadActive backs the host's "resume previous campaign?" prompt on cold
// start (dropped-feature recovery, see SPEC_FULL.md C1).
func (s *CampaignService) LoadActive(ctx context.Context) (*campaign.Session, error) {
	return s.store.LoadActive(ctx)
}

// Start begins (or resumes from lastProcessedIndex) a session's send run.
func (s *CampaignService) Start(ctx context.Context, sessionID string) error {
	if err := s.exec.Start(ctx, sessionID); err != nil {
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}
	return nil
}

// Schedule transitions a `ready` session to `scheduled` and durably
// enqueues it on the C8 heap to fire at the given time.
func (s *CampaignService) Schedule(ctx context.Context, sessionID string, fireAt time.Time, timezone string) error {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("schedule session %s: %w", sessionID, err)
	}
	if err := session.Transition(campaign.StatusScheduled); err != nil {
		return apperr.New(apperr.CodeInvalidInput, apperr.KindInvalidInput, "schedule session", err)
	}
	session.ScheduledAt = &fireAt
	if err := s.store.Save(ctx, session); err != nil {
		return apperr.New(apperr.CodeStorageWrite, apperr.KindStorage, "persist scheduled session", err)
	}
	if err := s.sched.Schedule(sessionID, fireAt, timezone); err != nil {
		return fmt.Errorf("schedule session %s: %w", sessionID, err)
	}
	return nil
}

// Pause requests a graceful pause; the run checkpoints and persists
// `paused` at its next cancellation point (§4.7, §5).
func (s *CampaignService) Pause(sessionID string) error {
	return s.exec.Pause(sessionID)
}

// Resume re-launches a paused session from its persisted checkpoint.
func (s *CampaignService) Resume(ctx context.Context, sessionID string) error {
	return s.exec.Resume(ctx, sessionID)
}

// Stop requests a hard stop: the run purges its retry queue entries,
// persists `stopped`, and releases its lease.
func (s *CampaignService) Stop(sessionID string) error {
	return s.exec.Stop(sessionID)
}

// AddOptOut records an opt-out, consulted read-only by the ComplianceGate
// on every subsequent recipient check.
func (s *CampaignService) AddOptOut(ctx context.Context, phone, reason string) error {
	normalized, err := compliance.Normalize(phone)
	if err != nil {
		return apperr.New(apperr.CodeInvalidInput, apperr.KindInvalidInput, "add opt-out", err)
	}
	if err := s.optouts.Add(ctx, optout.Record{Phone: normalized, Reason: reason}); err != nil {
		return apperr.New(apperr.CodeStorageWrite, apperr.KindStorage, "persist opt-out", err)
	}
	return nil
}

// ClearExhausted bulk-deletes EXHAUSTED outbound messages for a session,
// returning the number of rows removed.
func (s *CampaignService) ClearExhausted(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.store.ClearExhausted(ctx, sessionID)
	if err != nil {
		return 0, apperr.New(apperr.CodeStorageWrite, apperr.KindStorage, "clear exhausted", err)
	}
	return n, nil
}

// Stats returns the latest published C6 DeliveryStats snapshot.
func (s *CampaignService) Stats() delivery.Stats {
	return s.tracker.Snapshot()
}

// Subscribe exposes the §6 progress/event stream to a caller (e.g. the
// SSE handler). Buffer sizes the per-subscriber channel.
func (s *CampaignService) Subscribe(buffer int) (<-chan events.Event, func()) {
	return s.bus.Subscribe(buffer)
}

// IsRunning reports whether sessionID currently has an active executor run.
func (s *CampaignService) IsRunning(sessionID string) bool {
	return s.exec.IsRunning(sessionID)
}

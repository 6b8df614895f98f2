// Package executor implements the C7 CampaignExecutor: the orchestrator
// that drives one session's recipients through ComplianceGate, TemplateRenderer,
// RateLimiter and Transport, recording results via DeliveryTracker and
// RetryQueue.
//
// The control surface (pause/resume/stop) follows the same shape as the
// scheduler: one goroutine owns all mutable run state and reacts to either
// a ctrl message or the next loop iteration, so no locks are needed around
// the run's own bookkeeping. Unlike a fixed-tick batch processor, a run
// here is a single long-lived sequential pass over one session's
// recipients rather than a periodic fixed-size batch.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oggyb/bulksms/internal/compliance"
	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/delivery"
	"github.com/oggyb/bulksms/internal/domain/campaign"
	"github.com/oggyb/bulksms/internal/events"
	"github.com/oggyb/bulksms/internal/ratelimiter"
	"github.com/oggyb/bulksms/internal/retryqueue"
	"github.com/oggyb/bulksms/internal/template"
	"github.com/oggyb/bulksms/internal/transport"
)

// Executor wires the C1-C6 collaborators together. It holds no per-run
// state itself; per-run state lives in the Run call, which the Manager
// invokes on a goroutine of its own per session.
type Executor struct {
	store     campaign.Store
	limiter   *ratelimiter.Limiter
	gate      *compliance.Gate
	renderer  *template.Renderer
	retry     *retryqueue.Queue
	tracker   *delivery.Tracker
	transport transport.Transport
	bus       *events.Bus
	cfg       config.Config
	ownerID   string
}

func New(
	store campaign.Store,
	limiter *ratelimiter.Limiter,
	gate *compliance.Gate,
	renderer *template.Renderer,
	retry *retryqueue.Queue,
	tracker *delivery.Tracker,
	xport transport.Transport,
	bus *events.Bus,
	cfg config.Config,
	ownerID string,
) *Executor {
	return &Executor{
		store:     store,
		limiter:   limiter,
		gate:      gate,
		renderer:  renderer,
		retry:     retry,
		tracker:   tracker,
		transport: xport,
		bus:       bus,
		cfg:       cfg,
		ownerID:   ownerID,
	}
}

// cancelSignal carries the pause request. It is polled at the top of each
// main-loop iteration, between drained retries, and during the
// rate-limiter defer sleep; the checkpoint write, the transport send and
// the retry-queue poll observe only ctx (stop).
type cancelSignal struct {
	paused <-chan struct{}
}

// Run executes the §4.7 main loop for one session to completion, pause, or
// stop. It blocks until the run reaches a terminal outcome for this call:
// completed, failed, stopped, or paused. Callers (the Manager) re-invoke
// Run after a resume.
func (e *Executor) Run(ctx context.Context, sessionID string, sig cancelSignal) error {
	session, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("executor: load session %s: %w", sessionID, err)
	}

	ok, err := e.store.AcquireLease(ctx, sessionID, e.ownerID, e.cfg.Executor.LeaseTTL)
	if err != nil {
		return fmt.Errorf("executor: acquire lease %s: %w", sessionID, err)
	}
	if !ok {
		return campaign.ErrLeaseHeld
	}

	if session.ProcessingStatus != campaign.StatusSending {
		if err := session.Transition(campaign.StatusSending); err != nil {
			return err
		}
		if err := e.store.Save(ctx, session); err != nil {
			return fmt.Errorf("executor: persist start %s: %w", sessionID, err)
		}
	}

	log.Printf("[Executor] session=%s starting from index=%d/%d", sessionID, session.LastProcessedIndex, len(session.Recipients))

	outcome := e.mainLoop(ctx, session, sig)

	switch outcome {
	case outcomePaused:
		return e.checkpointStatus(ctx, session, campaign.StatusPaused)
	case outcomeStopped:
		if err := e.retry.Purge(ctx, sessionID); err != nil {
			log.Printf("[Executor] session=%s purge retry queue on stop: %v", sessionID, err)
		}
		if err := e.checkpointStatus(ctx, session, campaign.StatusStopped); err != nil {
			return err
		}
		return e.store.ReleaseLease(ctx, sessionID, e.ownerID)
	case outcomeCompleted:
		if err := e.checkpointStatus(ctx, session, campaign.StatusCompleted); err != nil {
			return err
		}
		e.renderer.ResetSession(sessionID)
		return e.store.ReleaseLease(ctx, sessionID, e.ownerID)
	case outcomeFailed:
		if err := e.checkpointStatus(ctx, session, campaign.StatusFailed); err != nil {
			log.Printf("[Executor] session=%s persist failed-state: %v", sessionID, err)
		}
		return e.store.ReleaseLease(ctx, sessionID, e.ownerID)
	}
	return nil
}

// StopPaused runs the outcomeStopped cleanup (retry-queue purge, persist
// stopped, release lease) for a session that is currently paused. Run has
// already returned for a paused session, so the Manager cannot re-enter it
// through the normal ctx-cancellation path on Stop; it calls this directly
// instead.
func (e *Executor) StopPaused(sessionID string) error {
	ctx := context.Background()
	session, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("executor: load session %s: %w", sessionID, err)
	}
	if session.ProcessingStatus != campaign.StatusPaused {
		// Run already reached a terminal outcome and did its own cleanup;
		// nothing to do here.
		return nil
	}
	if err := e.retry.Purge(ctx, sessionID); err != nil {
		log.Printf("[Executor] session=%s purge retry queue on stop-from-pause: %v", sessionID, err)
	}
	if err := e.checkpointStatus(ctx, session, campaign.StatusStopped); err != nil {
		return err
	}
	return e.store.ReleaseLease(ctx, sessionID, e.ownerID)
}

type runOutcome int

const (
	outcomeCompleted runOutcome = iota
	outcomePaused
	outcomeStopped
	outcomeFailed
)

// mainLoop implements §4.7 steps 2-4.
func (e *Executor) mainLoop(ctx context.Context, session *campaign.Session, sig cancelSignal) runOutcome {
	checkpointEvery := e.cfg.Executor.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = 50
	}
	checkpointInterval := e.cfg.Executor.CheckpointInterval
	if checkpointInterval <= 0 {
		checkpointInterval = 250 * time.Millisecond
	}

	sinceCheckpoint := 0
	lastCheckpoint := time.Now()
	lastProgress := time.Now()

	i := session.LastProcessedIndex
	total := len(session.Recipients)

	for {
		switch e.pollControl(ctx, sig) {
		case ctrlStop:
			return outcomeStopped
		case ctrlPause:
			return outcomePaused
		}

		if drained, err := e.retry.DrainDue(ctx, session.SessionID, time.Now()); err == nil && len(drained) > 0 {
			for _, msg := range drained {
				if e.pollControl(ctx, sig) != ctrlNone {
					return e.pauseOrStop(ctx, sig)
				}
				e.processRetryItem(ctx, session, msg)
			}
			sinceCheckpoint += len(drained)
		} else if err != nil {
			log.Printf("[Executor] session=%s drain due retries: %v", session.SessionID, err)
		}

		if i >= total {
			due, err := e.retry.HasDueWithinGrace(ctx, session.SessionID, time.Now(), e.cfg.Executor.RetryDrainGrace)
			if err != nil {
				log.Printf("[Executor] session=%s check drain grace: %v", session.SessionID, err)
				due = false
			}
			if !due {
				return outcomeCompleted
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		recipient := session.Recipients[i]
		advance := e.processRecipient(ctx, session, i, recipient, sig)
		if advance {
			i++
			session.LastProcessedIndex = i
		} else {
			// Deferred by the rate limiter; stay on the same index and
			// loop back to the cancellation check.
		}

		sinceCheckpoint++
		now := time.Now()
		if sinceCheckpoint >= checkpointEvery || now.Sub(lastCheckpoint) >= checkpointInterval {
			if err := e.checkpoint(ctx, session); err != nil {
				return outcomeFailed
			}
			sinceCheckpoint = 0
			lastCheckpoint = now
		}

		if now.Sub(lastProgress) >= 500*time.Millisecond {
			e.publishProgress(session)
			lastProgress = now
		}
	}
}

func (e *Executor) pauseOrStop(ctx context.Context, sig cancelSignal) runOutcome {
	switch e.pollControl(ctx, sig) {
	case ctrlStop:
		return outcomeStopped
	default:
		return outcomePaused
	}
}

type controlState int

const (
	ctrlNone controlState = iota
	ctrlPause
	ctrlStop
)

// pollControl checks the cooperative cancellation points named in §5: the
// caller's context (stop) and the pause channel. It does not block.
func (e *Executor) pollControl(ctx context.Context, sig cancelSignal) controlState {
	select {
	case <-ctx.Done():
		return ctrlStop
	default:
	}
	select {
	case <-sig.paused:
		return ctrlPause
	default:
	}
	return ctrlNone
}

// processRecipient runs one recipient through C3 -> C4 -> C2 -> Transport,
// per §4.7 steps d-h. It returns whether the caller should advance the
// recipient index.
func (e *Executor) processRecipient(ctx context.Context, session *campaign.Session, index int, r campaign.Recipient, sig cancelSignal) bool {
	decision, err := e.gate.Check(ctx, r.Phone, session.CampaignType)
	if err != nil {
		log.Printf("[Executor] session=%s compliance check %s: %v", session.SessionID, r.Phone, err)
		session.SkippedCount++
		return true
	}
	if decision.Result != compliance.Compliant {
		session.SkippedCount++
		return true
	}

	body := e.renderer.Render(session.SessionID, session.Template, r, func(mv template.MissingVariable) {
		e.bus.Publish(events.Event{Kind: events.KindMissingVariable, Payload: mv})
	})

	rl := e.limiter.Await(ctx, r.Phone, session.CampaignType)
	switch rl.Outcome {
	case ratelimiter.Deferred:
		e.sleepCancellable(ctx, sig, rl.RetryAfter)
		return false
	case ratelimiter.Rejected:
		session.FailedCount++
		return true
	}

	msg := campaign.NewOutboundMessage(session.SessionID, index, r.Phone, body, session.SimSlot)
	e.tracker.TrackPending(msg.MsgID, msg.Phone, bodyHash(body))
	if err := e.store.SaveOutbound(ctx, msg); err != nil {
		log.Printf("[Executor] session=%s persist outbound %s: %v", session.SessionID, msg.MsgID, err)
	}

	result, err := e.transport.Send(ctx, msg.MsgID, msg.Phone, msg.Body, msg.SimSlot)
	if err != nil {
		e.handleSendFailure(ctx, session, msg, transport.Transient, "transport_error", err.Error())
		return true
	}
	if result.OK {
		msg.MarkSent()
		e.tracker.MarkSent(msg.MsgID)
		session.SentCount++
		if err := e.store.SaveOutbound(ctx, msg); err != nil {
			log.Printf("[Executor] session=%s persist sent %s: %v", session.SessionID, msg.MsgID, err)
		}
		return true
	}

	e.handleSendFailure(ctx, session, msg, result.Category, result.ErrorCode, result.ErrorMessage)
	return true
}

// processRetryItem re-feeds a due OutboundMessage into the send pipeline,
// bypassing ComplianceGate re-evaluation (§4.5) but still honoring the
// RateLimiter.
func (e *Executor) processRetryItem(ctx context.Context, session *campaign.Session, msg *campaign.OutboundMessage) {
	rl := e.limiter.Await(ctx, msg.Phone, session.CampaignType)
	switch rl.Outcome {
	case ratelimiter.Deferred:
		// Rate-limiter backpressure is not a send failure: reschedule at
		// the same retry count so deferrals never consume retry budget.
		retryAfter := rl.RetryAfter
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		if err := e.retry.Defer(ctx, msg, time.Now().Add(retryAfter)); err != nil {
			log.Printf("[Executor] session=%s reschedule rate-limited retry %s: %v", session.SessionID, msg.MsgID, err)
		}
		return
	case ratelimiter.Rejected:
		msg.MarkFailed(rl.RejectReason, "rejected by rate limiter on retry")
		session.FailedCount++
		if err := e.store.SaveOutbound(ctx, msg); err != nil {
			log.Printf("[Executor] session=%s persist rejected retry %s: %v", session.SessionID, msg.MsgID, err)
		}
		return
	}

	e.tracker.TrackPending(msg.MsgID, msg.Phone, bodyHash(msg.Body))
	result, err := e.transport.Send(ctx, msg.MsgID, msg.Phone, msg.Body, msg.SimSlot)
	if err != nil {
		e.handleSendFailure(ctx, session, msg, transport.Transient, "transport_error", err.Error())
		return
	}
	if result.OK {
		msg.MarkSent()
		e.tracker.MarkSent(msg.MsgID)
		session.SentCount++
		if err := e.store.SaveOutbound(ctx, msg); err != nil {
			log.Printf("[Executor] session=%s persist retried sent %s: %v", session.SessionID, msg.MsgID, err)
		}
		return
	}
	e.handleSendFailure(ctx, session, msg, result.Category, result.ErrorCode, result.ErrorMessage)
}

func (e *Executor) handleSendFailure(ctx context.Context, session *campaign.Session, msg *campaign.OutboundMessage, cat transport.ErrorCategory, code, errMsg string) {
	e.tracker.MarkFailed(msg.MsgID)
	e.tracker.Untrack(msg.MsgID)

	if cat == transport.Transient {
		if err := e.retry.Enqueue(ctx, msg, code, errMsg); err != nil {
			log.Printf("[Executor] session=%s enqueue retry %s: %v", session.SessionID, msg.MsgID, err)
		}
		if msg.Status == campaign.MsgExhausted {
			session.FailedCount++
		}
		return
	}

	msg.MarkFailed(code, errMsg)
	session.FailedCount++
	if err := e.store.SaveOutbound(ctx, msg); err != nil {
		log.Printf("[Executor] session=%s persist failed %s: %v", session.SessionID, msg.MsgID, err)
	}
}

// sleepCancellable waits for d, honoring stop/pause in the meantime, per
// §5's "await must be cancellable".
func (e *Executor) sleepCancellable(ctx context.Context, sig cancelSignal, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-sig.paused:
	}
}

func (e *Executor) checkpoint(ctx context.Context, session *campaign.Session) error {
	if err := session.CheckInvariants(); err != nil {
		log.Printf("[Executor] session=%s invariant check failed: %v", session.SessionID, err)
	}
	c := campaign.Checkpoint{
		LastProcessedIndex: session.LastProcessedIndex,
		SentCount:          session.SentCount,
		FailedCount:        session.FailedCount,
		SkippedCount:       session.SkippedCount,
		ProcessingStatus:   session.ProcessingStatus,
	}
	if err := e.store.Checkpoint(ctx, session.SessionID, c); err != nil {
		log.Printf("[Executor] session=%s checkpoint write failed: %v", session.SessionID, err)
		return err
	}
	return nil
}

func (e *Executor) checkpointStatus(ctx context.Context, session *campaign.Session, status campaign.Status) error {
	old := session.ProcessingStatus
	if err := session.Transition(status); err != nil {
		// already terminal or same state; force it through for persistence.
		session.ProcessingStatus = status
	}
	if err := e.checkpoint(ctx, session); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.KindSessionStateChanged, Payload: events.SessionStateChangedPayload{
		SessionID: session.SessionID,
		OldStatus: string(old),
		NewStatus: string(status),
	}})
	e.publishProgress(session)
	return nil
}

func (e *Executor) publishProgress(session *campaign.Session) {
	p := session.ProgressSnapshot()
	e.bus.Publish(events.Event{Kind: events.KindProgress, Payload: events.ProgressPayload{
		SessionID: p.SessionID,
		Processed: p.Processed,
		Total:     p.Total,
		Sent:      p.Sent,
		Failed:    p.Failed,
		Skipped:   p.Skipped,
		Percent:   p.Percent,
	}})
}

// bodyHash is a short correlation key for the tracker's (phone, body)
// fallback-matching index (§4.6); it need not be cryptographic, only
// stable for a given body string.
func bodyHash(body string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(body); i++ {
		h ^= uint32(body[i])
		h *= 16777619
	}
	return fmt.Sprintf("%08x", h)
}

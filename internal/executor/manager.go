package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager runs CampaignExecutor passes for one or more sessions concurrently,
// up to a configured cap, and exposes the pause/resume/stop control surface
// described in §6. Each running session gets its own goroutine and its own
// small control channel: the goroutine that owns a run's cancellation state
// is the only writer of it.
type Manager struct {
	mu          sync.Mutex
	exec        *Executor
	maxParallel int
	runs        map[string]*run
}

type run struct {
	cancel  context.CancelFunc
	pause   chan struct{}
	resume  chan struct{}
	done    chan struct{}
	err     error
}

func NewManager(exec *Executor, maxParallel int) *Manager {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Manager{exec: exec, maxParallel: maxParallel, runs: make(map[string]*run)}
}

// Start launches a run for sessionId, failing if the parallelism cap is
// already reached or the session is already running.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if _, exists := m.runs[sessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("executor: session %s already running", sessionID)
	}
	if len(m.runs) >= m.maxParallel {
		m.mu.Unlock()
		return fmt.Errorf("executor: at capacity (%d parallel sessions)", m.maxParallel)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		cancel: cancel,
		pause:  make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.runs[sessionID] = r
	m.mu.Unlock()

	go m.driveSession(runCtx, sessionID, r)
	return nil
}

// driveSession repeatedly invokes Executor.Run, resuming after a pause
// until the run reaches a genuinely terminal outcome (stopped, completed,
// failed) or the process is asked to stop.
func (m *Manager) driveSession(ctx context.Context, sessionID string, r *run) {
	defer close(r.done)
	defer m.forget(sessionID)

	for {
		sig := cancelSignal{paused: r.pause}
		err := m.exec.Run(ctx, sessionID, sig)
		if err != nil {
			r.err = err
			log.Printf("[Executor] session=%s run ended with error: %v", sessionID, err)
			return
		}

		select {
		case <-ctx.Done():
			// Stop raced with Run's own return: if Run reached a terminal
			// outcome it already cleaned up and StopPaused is a no-op (it
			// checks status itself); if Run merely paused, StopPaused does
			// the stop cleanup here.
			if err := m.exec.StopPaused(sessionID); err != nil {
				r.err = err
				log.Printf("[Executor] session=%s stop-from-pause: %v", sessionID, err)
			}
			return
		default:
		}

		// Run returned cleanly: either the session paused (drain the one
		// pause signal, wait for resume or stop) or it reached a terminal
		// state and Executor.Run already released the lease.
		select {
		case <-r.resume:
			continue
		case <-ctx.Done():
			// Run already returned with outcomePaused, so it will not
			// re-observe this cancellation; the stop cleanup (retry purge,
			// persist stopped, release lease) has to be driven from here.
			if err := m.exec.StopPaused(sessionID); err != nil {
				r.err = err
				log.Printf("[Executor] session=%s stop-from-pause: %v", sessionID, err)
			}
			return
		}
	}
}

func (m *Manager) forget(sessionID string) {
	m.mu.Lock()
	delete(m.runs, sessionID)
	m.mu.Unlock()
}

// Pause requests a graceful pause of sessionID's run, per §4.7's
// cancellation semantics: the loop exits at its next check, no later than
// the current await's granularity.
func (m *Manager) Pause(sessionID string) error {
	r, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	select {
	case r.pause <- struct{}{}:
	default:
	}
	return nil
}

// Resume re-launches the loop for a paused session starting from its
// persisted lastProcessedIndex.
func (m *Manager) Resume(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, exists := m.runs[sessionID]
	m.mu.Unlock()
	if exists {
		r, _ := m.lookup(sessionID)
		select {
		case r.resume <- struct{}{}:
		default:
		}
		return nil
	}
	return m.Start(ctx, sessionID)
}

// Stop requests a hard stop; the run purges its C5 entries, persists
// `stopped` and releases its lease once either Executor.Run observes the
// cancelled context, or, if the session had already paused, StopPaused does
// so on driveSession's behalf.
func (m *Manager) Stop(sessionID string) error {
	r, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("executor: session %s stop timed out", sessionID)
	}
	return nil
}

// IsRunning reports whether sessionID currently has an active run.
func (m *Manager) IsRunning(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[sessionID]
	return ok
}

func (m *Manager) lookup(sessionID string) (*run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("executor: session %s is not running", sessionID)
	}
	return r, nil
}

// Package scheduler implements the C8 Scheduler: a durable min-heap of
// delayed campaign fires keyed by fireAtEpochMs, with a single dynamic
// wake-timer and missed-fire catch-up on startup (§4.8).
//
// The control surface (Start/Stop/IsRunning) and the single-goroutine,
// channel-driven ownership of mutable state follow a fixed-ticker batch
// processor shape; what changes is what the timer waits for: rather than
// firing on every tick, it wakes exactly when the earliest scheduled
// session is due and fires that one session through Trigger.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"time"
)

// Trigger is the dependency that actually starts a due session; in
// production this is executor.Manager.Start.
type Trigger interface {
	Start(ctx context.Context, sessionID string) error
}

// Store supplies the scheduled sessions to rebuild the heap after a
// restart (durability comes from the session's own persisted
// scheduledAt/processingStatus, not from a separate schedule table).
type Store interface {
	ListScheduled(ctx context.Context) ([]ScheduledSession, error)
}

// ScheduledSession is the minimal view the scheduler needs of a persisted
// scheduled session.
type ScheduledSession struct {
	SessionID string
	FireAt    time.Time
	Timezone  string // recorded for display only; arithmetic is UTC (§4.8)
}

// SchedulerService exposes the control surface from §6: schedule/start/stop.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
	Schedule(sessionID string, fireAt time.Time, timezone string) error
}

// controlTimeout bounds how long Start/Stop/Schedule wait for the loop to
// accept and acknowledge a command.
const controlTimeout = 2 * time.Second

type controlOp int

const (
	opStart controlOp = iota
	opStop
	opStatus
	opSchedule
)

type controlMsg struct {
	op       controlOp
	sessID   string
	fireAt   time.Time
	timezone string
	resp     chan bool
}

// fireItem is one entry in the scheduler's min-heap, ordered by FireAt.
type fireItem struct {
	sessionID string
	fireAt    time.Time
	timezone  string
	index     int
}

// fireHeap is a container/heap.Interface over fireItem, ascending by fireAt.
type fireHeap []*fireItem

func (h fireHeap) Len() int            { return len(h) }
func (h fireHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h fireHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *fireHeap) Push(x interface{}) {
	item := x.(*fireItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *fireHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// schedulerService owns the heap and all mutable state inside its single
// loop goroutine; nothing outside loop() ever touches the heap directly.
type schedulerService struct {
	trigger      Trigger
	store        Store
	pollInterval time.Duration
	ctrl         chan controlMsg
}

// NewSchedulerService constructs a Scheduler and launches its control
// loop; nothing fires until Start is called. The loop loads any previously
// scheduled sessions from store when it begins, and once started fires
// immediately anything already past due (§4.8's "missed fires").
func NewSchedulerService(trigger Trigger, store Store, pollInterval time.Duration) SchedulerService {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	s := &schedulerService{
		trigger:      trigger,
		store:        store,
		pollInterval: pollInterval,
		ctrl:         make(chan controlMsg),
	}
	go s.loop()
	return s
}

func (s *schedulerService) Start() error {
	return s.send(controlMsg{op: opStart, resp: make(chan bool)})
}

func (s *schedulerService) Stop() error {
	return s.send(controlMsg{op: opStop, resp: make(chan bool)})
}

func (s *schedulerService) IsRunning() bool {
	resp := make(chan bool)
	s.ctrl <- controlMsg{op: opStatus, resp: resp}
	return <-resp
}

// Schedule durably enqueues sessionID to fire at fireAt (UTC arithmetic;
// timezone is carried only for display, per §4.8).
func (s *schedulerService) Schedule(sessionID string, fireAt time.Time, timezone string) error {
	return s.send(controlMsg{op: opSchedule, sessID: sessionID, fireAt: fireAt.UTC(), timezone: timezone, resp: make(chan bool)})
}

func (s *schedulerService) send(msg controlMsg) error {
	select {
	case s.ctrl <- msg:
	case <-time.After(controlTimeout):
		return fmt.Errorf("[Scheduler] control loop not responding")
	}
	select {
	case <-msg.resp:
		return nil
	case <-time.After(controlTimeout):
		return fmt.Errorf("[Scheduler] acknowledgement timeout")
	}
}

// loop is the heart of the scheduler: it owns the heap and the dynamic
// wake-timer, and reacts to control messages or timer fires.
func (s *schedulerService) loop() {
	h := &fireHeap{}
	heap.Init(h)

	running := false
	s.loadPending(h)

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	resetTimer(timer, s.nextWake(h))

	for {
		select {
		case msg := <-s.ctrl:
			switch msg.op {
			case opStart:
				running = true
				log.Println("[Scheduler] started")
				resetTimer(timer, s.nextWake(h))
				msg.resp <- true

			case opStop:
				running = false
				log.Println("[Scheduler] stopped")
				msg.resp <- true

			case opStatus:
				msg.resp <- running

			case opSchedule:
				heap.Push(h, &fireItem{sessionID: msg.sessID, fireAt: msg.fireAt, timezone: msg.timezone})
				log.Printf("[Scheduler] scheduled session=%s fireAt=%s tz=%s", msg.sessID, msg.fireAt, msg.timezone)
				if running {
					resetTimer(timer, s.nextWake(h))
				}
				msg.resp <- true
			}

		case <-timer.C:
			if !running {
				resetTimer(timer, s.pollInterval)
				continue
			}
			now := time.Now().UTC()
			for h.Len() > 0 && !(*h)[0].fireAt.After(now) {
				item := heap.Pop(h).(*fireItem)
				s.fire(item)
			}
			resetTimer(timer, s.nextWake(h))
		}
	}
}

func (s *schedulerService) fire(item *fireItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.trigger.Start(ctx, item.sessionID); err != nil {
		log.Printf("[Scheduler] session=%s trigger failed: %v", item.sessionID, err)
	} else {
		log.Printf("[Scheduler] session=%s fired", item.sessionID)
	}
}

// loadPending rebuilds the heap from durable storage, catching up any
// sessions whose fireAt already elapsed while the process was down (§4.8).
func (s *schedulerService) loadPending(h *fireHeap) {
	if s.store == nil {
		return
	}
	entries, err := s.store.ListScheduled(context.Background())
	if err != nil {
		log.Printf("[Scheduler] load pending: %v", err)
		return
	}
	for _, e := range entries {
		heap.Push(h, &fireItem{sessionID: e.SessionID, fireAt: e.FireAt.UTC(), timezone: e.Timezone})
	}
	log.Printf("[Scheduler] loaded %d pending scheduled session(s)", len(entries))
}

// nextWake returns how long until the earliest heap entry is due, capped
// at pollInterval as a defensive fallback wake (e.g. against clock skew).
func (s *schedulerService) nextWake(h *fireHeap) time.Duration {
	if h.Len() == 0 {
		return s.pollInterval
	}
	d := (*h)[0].fireAt.Sub(time.Now().UTC())
	if d < 0 {
		return 0
	}
	if d > s.pollInterval {
		return s.pollInterval
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

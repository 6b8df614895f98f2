// Package ratelimiter implements the C2 layered admission control:
// quiet hours, per-number cooldown, sliding quota windows and a hard
// country-prefix blocklist, evaluated in that order.
package ratelimiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oggyb/bulksms/internal/cache"
	"github.com/oggyb/bulksms/internal/config"
	"github.com/oggyb/bulksms/internal/domain/campaign"
)

// Outcome is the admission decision returned by Await.
type Outcome int

const (
	Admitted Outcome = iota
	Deferred
	Rejected
)

// Decision carries the outcome plus any associated detail.
type Decision struct {
	Outcome     Outcome
	RetryAfter  time.Duration // valid when Outcome == Deferred
	RejectReason string       // valid when Outcome == Rejected
}

// window is a rolling counter for one granularity (second/minute/hour/day).
type window struct {
	size    time.Duration
	events  []time.Time // ring of admitted-send timestamps within `size`
	limit   int
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}

// saturated reports whether the window is at capacity, and if so, how long
// until the oldest event exits the window.
func (w *window) saturated(now time.Time) (bool, time.Duration) {
	w.prune(now)
	if w.limit <= 0 || len(w.events) < w.limit {
		return false, 0
	}
	oldest := w.events[0]
	until := w.size - now.Sub(oldest)
	if until < 0 {
		until = 0
	}
	return true, until
}

func (w *window) record(now time.Time) {
	w.events = append(w.events, now)
}

// categoryState is the per-category set of sliding windows.
type categoryState struct {
	second window
	minute window
	hour   window
	day    window
}

func newCategoryState(limits config.CategoryLimits) *categoryState {
	return &categoryState{
		second: window{size: time.Second, limit: limits.PerSecond},
		minute: window{size: time.Minute, limit: limits.PerMinute},
		hour:   window{size: time.Hour, limit: limits.PerHour},
		day:    window{size: 24 * time.Hour, limit: limits.PerDay},
	}
}

func (c *categoryState) windows() []*window {
	return []*window{&c.second, &c.minute, &c.hour, &c.day}
}

// Limiter is the C2 RateLimiter. Admission must be serialized per process:
// it is guarded by a single mutex so the limiter behaves as a
// single-threaded cooperative serializer even though callers may be
// concurrent (§4.2, §5).
type Limiter struct {
	mu sync.Mutex

	limits     config.PerCategoryLimits
	quietHours config.QuietHoursConfig
	cooldowns  map[campaign.Category]time.Duration
	blocked    []string

	states          map[campaign.Category]*categoryState
	lastSendPerPhone map[string]time.Time

	cache cache.Cache

	now func() time.Time
}

// New constructs a Limiter from config, per-category defaults from §4.2. c
// is an optional cross-process mirror for lastSendPerPhone (diagnostics
// only); nil disables it.
func New(cfg config.Config, c cache.Cache) *Limiter {
	l := &Limiter{
		limits:           cfg.RateLimit,
		quietHours:       cfg.QuietHours,
		cooldowns:        make(map[campaign.Category]time.Duration),
		blocked:          cfg.Compliance.BlockedPrefixes,
		states:           make(map[campaign.Category]*categoryState),
		lastSendPerPhone: make(map[string]time.Time),
		cache:            c,
		now:              time.Now,
	}
	for cat, lim := range cfg.RateLimit {
		l.cooldowns[cat] = lim.CooldownPerNumber
		l.states[cat] = newCategoryState(lim)
	}
	return l
}

func (l *Limiter) categoryState(cat campaign.Category) *categoryState {
	cs, ok := l.states[cat]
	if !ok {
		cs = newCategoryState(config.CategoryLimits{PerSecond: 1, PerMinute: 30, PerHour: 500, PerDay: 2000})
		l.states[cat] = cs
	}
	return cs
}

// Await evaluates the layered admission checks in §4.2 order and returns a
// Decision. It does not itself sleep; callers honor Deferred by sleeping
// with cancellation (§5) and retrying.
func (l *Limiter) Await(ctx context.Context, phone string, cat campaign.Category) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// 1. Quiet hours.
	if d, ok := l.quietHoursRemaining(now, cat); ok {
		return Decision{Outcome: Deferred, RetryAfter: d}
	}

	// 2. Per-number cooldown.
	cooldown := l.cooldowns[cat]
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	if last, ok := l.lastSendPerPhone[phone]; ok {
		elapsed := now.Sub(last)
		if elapsed < cooldown {
			return Decision{Outcome: Deferred, RetryAfter: cooldown - elapsed}
		}
	}

	// 3. Sliding windows.
	cs := l.categoryState(cat)
	for _, w := range cs.windows() {
		if sat, until := w.saturated(now); sat {
			return Decision{Outcome: Deferred, RetryAfter: until}
		}
	}

	// 4. Hard blocks (country prefix blocklist).
	if reason, blocked := l.isBlocked(phone); blocked {
		return Decision{Outcome: Rejected, RejectReason: reason}
	}

	// Admission: record across all windows and update lastSendPerPhone.
	for _, w := range cs.windows() {
		w.record(now)
	}
	l.lastSendPerPhone[phone] = now
	l.mirrorLastSend(phone, now)

	return Decision{Outcome: Admitted}
}

// mirrorLastSend best-effort writes the admitted-send timestamp to the
// cross-process cache mirror. It never blocks Await: the write runs in its
// own goroutine against a short-lived context, and a failure here is purely
// a diagnostics gap, not an admission error.
func (l *Limiter) mirrorLastSend(phone string, at time.Time) {
	if l.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.cache.Set(ctx, cache.LastSendPerPhone.Key(phone), at.Format(time.RFC3339Nano), 24*time.Hour)
	}()
}

func (l *Limiter) isBlocked(phone string) (string, bool) {
	for _, prefix := range l.blocked {
		if prefix != "" && strings.HasPrefix(phone, prefix) {
			return "blocked_prefix", true
		}
	}
	return "", false
}

// quietHoursRemaining returns the duration until quiet hours end, if `now`
// falls within the configured window for this category.
func (l *Limiter) quietHoursRemaining(now time.Time, cat campaign.Category) (time.Duration, bool) {
	if !l.quietHours.Enabled {
		return 0, false
	}
	applies := false
	for _, c := range l.quietHours.Categories {
		if c == cat {
			applies = true
			break
		}
	}
	if !applies {
		return 0, false
	}

	loc := time.Local
	if l.quietHours.Location != "" && l.quietHours.Location != "Local" {
		if tz, err := time.LoadLocation(l.quietHours.Location); err == nil {
			loc = tz
		}
	}
	local := now.In(loc)

	start, errS := parseClock(l.quietHours.StartLocal)
	end, errE := parseClock(l.quietHours.EndLocal)
	if errS != nil || errE != nil {
		return 0, false
	}

	startToday := time.Date(local.Year(), local.Month(), local.Day(), start.hour, start.min, 0, 0, loc)
	endToday := time.Date(local.Year(), local.Month(), local.Day(), end.hour, end.min, 0, 0, loc)

	var inWindow bool
	var windowEnd time.Time

	if start.before(end) {
		// Window does not cross midnight, e.g. 08:00-21:00.
		inWindow = !local.Before(startToday) && local.Before(endToday)
		windowEnd = endToday
	} else {
		// Window crosses midnight, e.g. 21:00-08:00.
		if !local.Before(startToday) {
			inWindow = true
			windowEnd = endToday.Add(24 * time.Hour)
		} else if local.Before(endToday) {
			inWindow = true
			windowEnd = endToday
		}
	}

	if !inWindow {
		return 0, false
	}
	return windowEnd.Sub(local), true
}

// LastSendPerPhone exposes the last admitted-send timestamp for a phone,
// used by §8's monotonicity property tests.
func (l *Limiter) LastSendPerPhone(phone string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastSendPerPhone[phone]
	return t, ok
}

type clock struct{ hour, min int }

func (c clock) before(o clock) bool {
	if c.hour != o.hour {
		return c.hour < o.hour
	}
	return c.min < o.min
}

func parseClock(s string) (clock, error) {
	var h, m int
	_, err := time.Parse("15:04", s)
	if err != nil {
		return clock{}, err
	}
	parts := strings.Split(s, ":")
	h = atoi(parts[0])
	m = atoi(parts[1])
	return clock{hour: h, min: m}, nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// TargetInterval translates a messages/hour sendSpeed into the inter-message
// interval the executor should pace itself to, per §4.2: "sendSpeed is
// expressed in messages/hour and is translated internally to a target
// inter-message interval; deviations within ±10% are acceptable."
func TargetInterval(sendSpeedPerHour int) time.Duration {
	if sendSpeedPerHour <= 0 {
		return time.Hour
	}
	return time.Hour / time.Duration(sendSpeedPerHour)
}

// Package ratelimit tracks per-user action counts in sliding windows and
// per-command cooldowns. Counters are ephemeral and process-local; they
// reset when the process restarts.
package ratelimit

import (
	"sync"
	"time"
)

// Action classifies what is being limited.
type Action string

const (
	ActionCommands Action = "commands"
	ActionTickets  Action = "tickets"
	ActionMessages Action = "messages"
)

// Rule is a count limit over a rolling window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules mirror the bot's abuse thresholds: 3 tickets per hour,
// 30 relayed messages per minute, 20 commands per minute.
var DefaultRules = map[Action]Rule{
	ActionCommands: {Limit: 20, Window: time.Minute},
	ActionTickets:  {Limit: 3, Window: time.Hour},
	ActionMessages: {Limit: 30, Window: time.Minute},
}

// DefaultCooldowns are per-command minimum intervals per user.
var DefaultCooldowns = map[string]time.Duration{
	"default":   3 * time.Second,
	"dashboard": 30 * time.Second,
	"analytics": time.Minute,
	"report":    2 * time.Minute,
	"search":    10 * time.Second,
	"open":      15 * time.Second,
	"priority":  5 * time.Second,
}

// Result reports the outcome of a limit check.
type Result struct {
	Limited    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type counter struct {
	count     int
	resetTime time.Time
}

// Limiter enforces sliding-window rules and command cooldowns.
type Limiter struct {
	mu        sync.Mutex
	rules     map[Action]Rule
	cooldowns map[string]time.Duration
	counters  map[string]*counter
	lastUse   map[string]time.Time
	now       func() time.Time
}

// NewLimiter creates a limiter with the default rules.
func NewLimiter() *Limiter {
	return &Limiter{
		rules:     DefaultRules,
		cooldowns: DefaultCooldowns,
		counters:  make(map[string]*counter),
		lastUse:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// NewLimiterWithClock creates a limiter with an injected clock, for tests.
func NewLimiterWithClock(now func() time.Time) *Limiter {
	l := NewLimiter()
	l.now = now
	return l
}

// Check counts one action for the subject and reports whether the subject
// exceeded the rule. The window is a deadline check on read; expired
// entries are lazily reset rather than evicted by a timer.
func (l *Limiter) Check(subjectID string, action Action) Result {
	rule, ok := l.rules[action]
	if !ok {
		return Result{}
	}

	now := l.now()
	key := subjectID + "-" + string(action)

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || now.After(c.resetTime) {
		l.counters[key] = &counter{count: 1, resetTime: now.Add(rule.Window)}
		return Result{Count: 1, Limit: rule.Limit}
	}

	c.count++
	if c.count > rule.Limit {
		return Result{
			Limited:    true,
			Count:      c.count,
			Limit:      rule.Limit,
			RetryAfter: c.resetTime.Sub(now),
		}
	}
	return Result{Count: c.count, Limit: rule.Limit}
}

// CheckCooldown reports whether the user must wait before reusing a
// command, and starts the cooldown if not.
func (l *Limiter) CheckCooldown(userID, command string) Result {
	cooldown, ok := l.cooldowns[command]
	if !ok {
		cooldown = l.cooldowns["default"]
	}

	now := l.now()
	key := userID + "-" + command

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastUse[key]; ok {
		expiry := last.Add(cooldown)
		if now.Before(expiry) {
			return Result{Limited: true, RetryAfter: expiry.Sub(now)}
		}
	}
	l.lastUse[key] = now
	return Result{}
}

// Evict drops expired counters and cooldown entries. Called opportunistically
// by the autosave worker to bound map growth.
func (l *Limiter) Evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.After(c.resetTime) {
			delete(l.counters, key)
		}
	}
	var maxCooldown time.Duration
	for _, d := range l.cooldowns {
		if d > maxCooldown {
			maxCooldown = d
		}
	}
	for key, last := range l.lastUse {
		if now.Sub(last) > maxCooldown {
			delete(l.lastUse, key)
		}
	}
}

package engine

import (
	"sync"
	"time"
)

// DailyBudget caps how many messages the persona sends per conversation per
// UTC day. Counters reset when the UTC date rolls over; the cap is a safety
// net on top of the send cooldown, so the persona stays rare even in a
// conversation that keeps re-triggering it.
type DailyBudget struct {
	mu     sync.Mutex
	cap    int
	day    string // UTC date the counters belong to, e.g. "2026-08-29"
	counts map[string]int
}

// NewDailyBudget returns a budget allowing cap messages per conversation per
// UTC day.
func NewDailyBudget(cap int) *DailyBudget {
	if cap <= 0 {
		cap = 1
	}
	return &DailyBudget{cap: cap, counts: make(map[string]int)}
}

// Allow reports whether the conversation still has budget today. Does not
// consume; dispatch paths call Consume after a successful send.
func (b *DailyBudget) Allow(convID string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(now)
	return b.counts[convID] < b.cap
}

// Consume records one sent message for the conversation.
func (b *DailyBudget) Consume(convID string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(now)
	b.counts[convID]++
}

// rollover resets all counters when the UTC date changes. Caller holds mu.
func (b *DailyBudget) rollover(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != b.day {
		b.day = day
		b.counts = make(map[string]int)
	}
}

// WeeklyBudget caps silence nudges per conversation per rolling week. Each
// conversation's counter resets once seven days have passed since its last
// reset, mirroring the per-conversation weekly accounting of the daily cap.
type WeeklyBudget struct {
	mu     sync.Mutex
	cap    int
	counts map[string]*weeklyCount
}

type weeklyCount struct {
	used    int
	resetAt time.Time
}

// NewWeeklyBudget returns a budget allowing cap events per conversation per
// rolling 7-day period.
func NewWeeklyBudget(cap int) *WeeklyBudget {
	if cap <= 0 {
		cap = 1
	}
	return &WeeklyBudget{cap: cap, counts: make(map[string]*weeklyCount)}
}

// Allow reports whether the conversation still has weekly budget.
func (b *WeeklyBudget) Allow(convID string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(convID, now).used < b.cap
}

// Consume records one event for the conversation.
func (b *WeeklyBudget) Consume(convID string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(convID, now).used++
}

// entry returns the live counter for convID, resetting it when its week has
// elapsed. Caller holds mu.
func (b *WeeklyBudget) entry(convID string, now time.Time) *weeklyCount {
	c, ok := b.counts[convID]
	if !ok {
		c = &weeklyCount{resetAt: now}
		b.counts[convID] = c
		return c
	}
	if now.Sub(c.resetAt) >= 7*24*time.Hour {
		c.used = 0
		c.resetAt = now
	}
	return c
}

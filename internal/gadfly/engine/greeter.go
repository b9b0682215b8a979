package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// RunGreetCheck runs one daily-greeter pass. Unlike nudges, greetings skip
// the queue and composer entirely: they are canned lines sent directly, at
// most once per conversation per 24 hours.
func (e *Engine) RunGreetCheck(ctx context.Context) {
	for _, id := range e.store.IDs() {
		st := e.store.Get(id)
		if st == nil {
			continue
		}
		e.maybeGreet(ctx, st)
	}
}

func (e *Engine) maybeGreet(ctx context.Context, st *ConversationState) {
	now := e.clock.Now()

	var greeting string

	st.mu.Lock()
	eligible := func() bool {
		if !st.Enabled || now.Before(st.MutedUntil) {
			return false
		}
		if st.LastActivity.IsZero() || now.Sub(st.LastActivity) < e.cfg.GreetSilence {
			return false
		}
		// Greetings keep the same spacing as every other dispatch.
		if now.Sub(st.LastSent) < e.cfg.SendCooldown {
			return false
		}
		if !st.LastGreeting.IsZero() && now.Sub(st.LastGreeting) < 24*time.Hour {
			return false
		}
		if !e.greetWindowOpen(now) {
			return false
		}
		if !e.daily.Allow(st.ID, now) {
			return false
		}
		return true
	}()
	if eligible {
		greeting = pick(e.contentRNG, e.lex.Greetings)
	}
	st.mu.Unlock()

	if greeting == "" {
		return
	}

	if err := e.transport.Send(ctx, st.ID, greeting); err != nil {
		slog.Warn("greeting failed", "conv", st.ID, "err", err)
		return
	}

	// Stamp only after delivery, so a failed send does not burn the day's
	// greeting slot.
	st.mu.Lock()
	st.LastGreeting = now
	st.LastSent = now
	st.mu.Unlock()
	e.daily.Consume(st.ID, now)
	slog.Info("daily greeting sent", "conv", st.ID)
}

// greetWindowOpen reports whether now falls in the greeting schedule: either
// the configured cron window, or (probabilistically) the early-morning band
// just before it.
func (e *Engine) greetWindowOpen(now time.Time) bool {
	due, err := gronx.New().IsDue(e.cfg.GreetSchedule, now)
	if err != nil {
		slog.Warn("bad greet schedule", "schedule", e.cfg.GreetSchedule, "err", err)
		return false
	}
	if due {
		return true
	}
	hour := now.Hour()
	return hour >= 6 && hour < 9 && e.gateRNG.Float64() < e.cfg.MorningGreetChance
}

package engine

import (
	"context"
	"log/slog"

	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
)

// RunNudgeCheck runs one silence-nudger pass. A due conversation gets a
// synthetic conversation-starter item pushed through the normal pending
// queue, so the nudge is rate-limited, batched and composed exactly like a
// real reply.
func (e *Engine) RunNudgeCheck(ctx context.Context) {
	for _, id := range e.store.IDs() {
		st := e.store.Get(id)
		if st == nil {
			continue
		}
		e.maybeNudge(st)
	}
}

func (e *Engine) maybeNudge(st *ConversationState) {
	now := e.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.Enabled || now.Before(st.MutedUntil) {
		return
	}
	if st.LastActivity.IsZero() || now.Sub(st.LastActivity) < e.cfg.NudgeSilence {
		return
	}
	hour := now.Hour()
	if hour < e.cfg.NudgeHourStart || hour >= e.cfg.NudgeHourEnd {
		return
	}
	if now.Sub(st.LastInterject) < e.cfg.InterjectMinGap {
		return
	}
	if !e.nudges.Allow(st.ID, now) {
		return
	}
	if e.gateRNG.Float64() >= e.cfg.NudgeChance {
		return
	}

	seed := pick(e.contentRNG, e.lex.Seeds)
	if seed == "" {
		return
	}

	item := newPendingItem(now, st.ID, "", "", seed, lexicon.Flags{})
	item.Synthetic = true
	e.enqueueLocked(st, item)

	// Warm the window so replies to the nudge get answered.
	if exp := now.Add(e.cfg.ActiveWindow); exp.After(st.ActiveUntil) {
		st.ActiveUntil = exp
	}
	st.LastInterject = now
	e.nudges.Consume(st.ID, now)

	slog.Info("silence nudge queued", "conv", st.ID, "silence", now.Sub(st.LastActivity))
}

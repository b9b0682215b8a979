package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mpavlenko/gadfly/common/trace"
)

// FlushPending runs one batch-worker pass over every known conversation.
// Called on the worker tick; also callable directly from tests.
func (e *Engine) FlushPending(ctx context.Context) {
	for _, id := range e.store.IDs() {
		st := e.store.Get(id)
		if st == nil {
			continue
		}
		e.flushConversation(ctx, st)
	}
}

// flushConversation drains and answers at most one batch. The conversation
// lock is held only for the drain and the post-send bookkeeping; generation
// and dispatch happen unlocked.
func (e *Engine) flushConversation(ctx context.Context, st *ConversationState) {
	now := e.clock.Now()

	st.mu.Lock()
	if !st.Enabled || st.Queue.Len() == 0 {
		st.mu.Unlock()
		return
	}
	if now.Sub(st.LastSent) < e.cfg.SendCooldown {
		st.mu.Unlock()
		return
	}
	if !e.daily.Allow(st.ID, now) {
		st.mu.Unlock()
		return
	}

	batch := st.Queue.DrainBatch(e.cfg.MaxBatchItems, e.cfg.BatchWindow)
	history := st.Memory.Tail(e.cfg.HistoryWindow)
	var partnerID string
	if st.Dialog != nil && !now.After(st.Dialog.ExpiresAt) {
		partnerID = st.Dialog.PartnerID
	}
	st.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	mode := e.pickMode(batch)
	crowd := crowded(batch, e.cfg.CrowdThreshold)
	prompt := buildPrompt(history, batch, crowd)

	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	lines := e.composer.Compose(ctx, st.ID, mode, crowd, prompt)
	if len(lines) == 0 {
		// Abandoned flush: the batch is consumed but the cooldown is not
		// touched, so the next accepted message can retry promptly.
		slog.Warn("flush abandoned, composer returned nothing",
			"conv", st.ID, "batch", len(batch), "trace_id", trace.FromContext(ctx))
		return
	}

	e.dispatch(ctx, st.ID, lines, replyTarget(batch))

	sent := e.clock.Now()
	var closing, closedPartner string

	st.mu.Lock()
	st.LastSent = sent
	e.daily.Consume(st.ID, sent)
	if partnerID != "" && st.Dialog != nil && st.Dialog.PartnerID == partnerID && batchHasAuthor(batch, partnerID) {
		st.Dialog.TurnsLeft--
		st.Dialog.Taken++
		exhausted := st.Dialog.TurnsLeft <= 0
		bored := st.Dialog.Taken >= e.cfg.DialogMinTurns && e.gateRNG.Float64() < e.cfg.DialogExitChance
		if exhausted || bored {
			closedPartner = st.Dialog.PartnerID
			closing = pick(e.contentRNG, e.lex.Closings)
			st.Ignored[closedPartner] = sent.Add(e.cfg.IgnoreDuration)
			st.Dialog = nil
		}
	}
	st.mu.Unlock()

	if closing != "" {
		if err := e.transport.Send(ctx, st.ID, closing); err != nil {
			slog.Warn("closing remark failed", "conv", st.ID, "err", err)
		}
		slog.Info("dialog closed", "conv", st.ID, "partner", closedPartner,
			"ignore_for", e.cfg.IgnoreDuration)
	}

	slog.Info("batch flushed", "conv", st.ID, "items", batchIDs(batch),
		"lines", len(lines), "mode", string(mode), "crowd", crowd,
		"trace_id", trace.FromContext(ctx))
}

// dispatch sends the composed lines. The first line is threaded as a reply
// when the batch contained a direct call; later lines are plain sends with a
// small randomized pause so multi-line answers read as typed, not pasted.
func (e *Engine) dispatch(ctx context.Context, convID string, lines []string, replyTo string) {
	for i, line := range lines {
		if i > 0 && e.cfg.InterLineDelayMax > 0 {
			jitter := time.Duration(e.contentRNG.IntN(int(e.cfg.InterLineDelayMax)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter):
			}
		}

		var err error
		if i == 0 && replyTo != "" {
			err = e.transport.Reply(ctx, convID, replyTo, line)
		} else {
			err = e.transport.Send(ctx, convID, line)
		}
		// A failed line is dropped on its own; the rest of the burst still
		// goes out.
		if err != nil {
			slog.Warn("dispatch failed", "conv", convID, "line", i, "err", err)
		}
	}
}

// pickMode chooses moderator mode when the batch carries conflict, or
// probabilistically when it only carries defensiveness.
func (e *Engine) pickMode(batch []PendingItem) PersonaMode {
	defensive := false
	for _, it := range batch {
		if it.Flags.IsConflict {
			return ModeModerator
		}
		if it.Flags.IsDefensive {
			defensive = true
		}
	}
	if defensive && e.gateRNG.Float64() < e.cfg.DefensiveModeratorChance {
		return ModeModerator
	}
	return ModeConversational
}

// crowded reports whether the batch has at least threshold distinct human
// authors. Synthetic nudge items carry no author and never count.
func crowded(batch []PendingItem, threshold int) bool {
	authors := make(map[string]struct{}, len(batch))
	for _, it := range batch {
		if it.Synthetic || it.UserID == "" {
			continue
		}
		authors[it.UserID] = struct{}{}
	}
	return len(authors) >= threshold
}

// replyTarget returns the event ID of the newest direct call in the batch,
// or "" when the response should not be threaded.
func replyTarget(batch []PendingItem) string {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].Flags.IsCall && batch[i].EventID != "" {
			return batch[i].EventID
		}
	}
	return ""
}

func batchIDs(batch []PendingItem) []string {
	ids := make([]string, len(batch))
	for i, it := range batch {
		ids[i] = it.ID
	}
	return ids
}

func batchHasAuthor(batch []PendingItem, userID string) bool {
	for _, it := range batch {
		if it.UserID == userID {
			return true
		}
	}
	return false
}

// buildPrompt renders the generation prompt: recent context first, then the
// unanswered burst, then the situational directives.
func buildPrompt(history []MemoryEntry, batch []PendingItem, crowd bool) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, entry := range history {
			fmt.Fprintf(&b, "%s: %s\n", entry.Author, entry.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString("Messages to respond to:\n")
	for _, it := range batch {
		if it.Synthetic {
			fmt.Fprintf(&b, "(the room has been quiet; open with something like: %s)\n", it.Text)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", it.DisplayName, it.Text)
	}
	if crowd {
		b.WriteString("\nSeveral people are talking at once; keep it short and address the room, not one person.\n")
	}
	return b.String()
}

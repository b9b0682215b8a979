package engine

import (
	"context"
	"log/slog"
	"time"
)

// Decision is the engagement gate's verdict for one inbound message.
type Decision int

const (
	// DecisionDropped means the message produced no queue entry.
	DecisionDropped Decision = iota
	// DecisionEnqueued means the message was accepted into the pending queue.
	DecisionEnqueued
	// DecisionPushback means the message was a stop phrase: an acknowledgment
	// was dispatched and the conversation muted.
	DecisionPushback
)

// HandleMessage ingests one chat message: classification, rolling-memory
// append, then gate evaluation. The returned Decision is informational; all
// state updates have already been applied.
//
// Gate precedence (one canonical order for conflicting signals):
// disabled > pushback > mute > ignore > classified flags > active window >
// probabilistic interject.
func (e *Engine) HandleMessage(ctx context.Context, msg Inbound) Decision {
	now := e.clock.Now()
	flags := e.lex.Classify(msg.Text)
	st := e.store.GetOrCreate(msg.ConvID)

	var ack string // pushback acknowledgment, sent after the lock is released

	st.mu.Lock()
	// Memory and activity tracking happen for every message, gated or not —
	// the rolling memory is conversation context, not persona output.
	st.Memory.Append(msg.DisplayName, msg.Text)
	st.LastActivity = now

	decision := func() Decision {
		if !st.Enabled {
			return DecisionDropped
		}

		if e.lex.IsPushback(msg.Text) {
			ack = pick(e.contentRNG, e.lex.Acks)
			st.MutedUntil = now.Add(e.cfg.MuteDuration)
			st.ActiveUntil = time.Time{}
			// Pending items predate the stop request; flushing them later
			// would be exactly what the user asked to end.
			st.Queue.Clear()
			// A mute and a dialog session are mutually exclusive; the session
			// is discarded without a closing remark or ignore entry.
			st.Dialog = nil
			return DecisionPushback
		}

		if now.Before(st.MutedUntil) {
			return DecisionDropped
		}

		if st.isIgnored(msg.UserID, now) {
			return DecisionDropped
		}

		// Lapse an expired dialog session silently before it can influence
		// anything below.
		if st.Dialog != nil && now.After(st.Dialog.ExpiresAt) {
			st.Dialog = nil
		}

		if flags.IsCall || flags.IsConflict || flags.IsDefensive {
			if exp := now.Add(e.cfg.ActiveWindow); exp.After(st.ActiveUntil) {
				st.ActiveUntil = exp
			}
			if flags.IsCall && st.Dialog == nil {
				st.Dialog = e.openDialog(msg.UserID, now)
			}
			e.enqueueLocked(st, newPendingItem(now, msg.ConvID, msg.UserID, msg.DisplayName, msg.Text, flags).withEvent(msg.EventID))
			return DecisionEnqueued
		}

		if now.Before(st.ActiveUntil) {
			e.enqueueLocked(st, newPendingItem(now, msg.ConvID, msg.UserID, msg.DisplayName, msg.Text, flags).withEvent(msg.EventID))
			return DecisionEnqueued
		}

		if e.gateRNG.Float64() < e.cfg.ReplyChance && now.Sub(st.LastInterject) >= e.cfg.InterjectMinGap {
			st.LastInterject = now
			e.enqueueLocked(st, newPendingItem(now, msg.ConvID, msg.UserID, msg.DisplayName, msg.Text, flags).withEvent(msg.EventID))
			return DecisionEnqueued
		}

		return DecisionDropped
	}()
	st.mu.Unlock()

	if decision == DecisionPushback {
		if err := e.transport.Reply(ctx, msg.ConvID, msg.EventID, ack); err != nil {
			slog.Warn("pushback ack failed", "conv", msg.ConvID, "err", err)
		}
		slog.Info("pushback: muted", "conv", msg.ConvID, "until", e.cfg.MuteDuration)
	}
	return decision
}

// openDialog draws a fresh turn budget from the configured range.
func (e *Engine) openDialog(partnerID string, now time.Time) *DialogSession {
	span := e.cfg.DialogTurnsMax - e.cfg.DialogTurnsMin + 1
	return &DialogSession{
		PartnerID: partnerID,
		TurnsLeft: e.cfg.DialogTurnsMin + e.gateRNG.IntN(span),
		ExpiresAt: now.Add(e.cfg.DialogTTL),
	}
}

// enqueueLocked pushes an item onto the conversation queue, logging when the
// bound forces an oldest-item drop. Caller holds st.mu.
func (e *Engine) enqueueLocked(st *ConversationState, item PendingItem) {
	if droppedID := st.Queue.Push(item); droppedID != "" {
		slog.Warn("pending queue full, dropped oldest",
			"conv", st.ID, "item", droppedID, "limit", e.cfg.QueueLimit)
	}
	slog.Debug("message enqueued", "conv", st.ID, "item", item.ID)
}

// withEvent attaches the transport event ID for reply threading.
func (p PendingItem) withEvent(eventID string) PendingItem {
	p.EventID = eventID
	return p
}

// pick selects a random element; returns "" for an empty pool.
func pick(r Rand, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[r.IntN(len(pool))]
}

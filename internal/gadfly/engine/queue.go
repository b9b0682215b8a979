package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
)

// PendingItem is one gate-accepted message awaiting a response. Immutable
// once created; consumed exactly once by the batch worker.
type PendingItem struct {
	ID          string
	Timestamp   time.Time
	ConvID      string
	UserID      string
	DisplayName string
	Text        string
	Flags       lexicon.Flags
	// Synthetic marks nudger-generated conversation starters.
	Synthetic bool
	// EventID is the transport event the item came from; used to thread the
	// response as a reply when the item was a direct call. Empty for
	// synthetic items.
	EventID string
}

// newPendingItem builds an item with a fresh ID.
func newPendingItem(ts time.Time, convID, userID, displayName, text string, flags lexicon.Flags) PendingItem {
	return PendingItem{
		ID:          uuid.New().String(),
		Timestamp:   ts,
		ConvID:      convID,
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Flags:       flags,
	}
}

// PendingQueue is a bounded FIFO of gate-accepted messages, strictly ordered
// by enqueue time. On overflow the oldest item is dropped: newest context is
// the most useful context, and an unbounded queue behind a slow generation
// provider would grow without limit.
// Not safe for concurrent use — callers hold the owning conversation's lock.
type PendingQueue struct {
	items []PendingItem
	limit int
}

// NewPendingQueue returns a queue bounded to limit items.
func NewPendingQueue(limit int) *PendingQueue {
	if limit <= 0 {
		limit = 1
	}
	return &PendingQueue{limit: limit}
}

// Push appends an item. When the bound forces an eviction, the dropped
// (oldest) item's ID is returned so the caller can log which record was lost.
func (q *PendingQueue) Push(item PendingItem) (droppedID string) {
	if len(q.items) >= q.limit {
		droppedID = q.items[0].ID
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
	return droppedID
}

// DrainBatch pops items while the batch stays under maxItems and every item's
// timestamp is within window of the first popped item. This bounds both the
// volume and the staleness spread of a single flush.
func (q *PendingQueue) DrainBatch(maxItems int, window time.Duration) []PendingItem {
	if len(q.items) == 0 {
		return nil
	}
	first := q.items[0].Timestamp
	n := 0
	for n < len(q.items) && n < maxItems {
		if q.items[n].Timestamp.Sub(first) > window {
			break
		}
		n++
	}
	batch := make([]PendingItem, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	return batch
}

// Len returns the number of queued items.
func (q *PendingQueue) Len() int { return len(q.items) }

// Clear discards all queued items (used when a conversation is disabled).
func (q *PendingQueue) Clear() { q.items = nil }

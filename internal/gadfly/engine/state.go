package engine

import (
	"sync"
	"time"
)

// DialogSession is a bounded-turn pairwise exchange opened when the persona
// is directly addressed. It is destroyed when turns run out, the expiry
// passes, or the early-exit draw fires. A session and a mute are mutually
// exclusive: pushback discards any open session.
type DialogSession struct {
	// PartnerID is the user the exchange is with.
	PartnerID string
	// TurnsLeft is the remaining reply budget, drawn once at open.
	TurnsLeft int
	// Taken counts consumed turns; the early-exit probability applies only
	// after DialogMinTurns have been taken.
	Taken int
	// ExpiresAt lapses an idle session without a closing remark.
	ExpiresAt time.Time
}

// ConversationState is the full per-conversation record. All state is
// process-lifetime only — a restart resets every timer, queue and memory.
//
// The mutex guards every field; gate evaluation and worker drains hold it
// across their read-modify-write sequences and release it before any I/O
// (sending, generation).
type ConversationState struct {
	mu sync.Mutex

	ID      string
	Enabled bool

	LastActivity time.Time
	LastSent     time.Time
	// ActiveUntil is the warmed-up window expiry; zero when dormant.
	ActiveUntil time.Time
	// MutedUntil is the pushback mute expiry; the muted state simply stops
	// being true once the clock passes it.
	MutedUntil time.Time
	// Ignored maps user ID → suppression expiry. Entries are pruned lazily
	// whenever the map is consulted.
	Ignored map[string]time.Time

	Dialog *DialogSession

	Memory *RollingMemory
	Queue  *PendingQueue

	// LastInterject is shared by probabilistic replies and silence nudges to
	// enforce the minimum gap between unprompted interjections.
	LastInterject time.Time
	// LastGreeting enforces the one-greeting-per-24h rule.
	LastGreeting time.Time
}

// isIgnored reports whether userID is currently suppressed, pruning the
// entry when its expiry has passed. Caller holds mu.
func (st *ConversationState) isIgnored(userID string, now time.Time) bool {
	exp, ok := st.Ignored[userID]
	if !ok {
		return false
	}
	if !exp.After(now) {
		delete(st.Ignored, userID)
		return false
	}
	return true
}

// Store owns every ConversationState, keyed by conversation ID and created
// lazily on first contact. Safe for concurrent use; the returned states
// carry their own locks.
type Store struct {
	mu       sync.Mutex
	settings Settings
	convos   map[string]*ConversationState
}

// NewStore creates an empty store. Settings supply the per-conversation
// memory capacity and queue limit.
func NewStore(settings Settings) *Store {
	return &Store{
		settings: settings.withDefaults(),
		convos:   make(map[string]*ConversationState),
	}
}

// GetOrCreate returns the state for convID, creating an enabled record on
// first sight.
func (s *Store) GetOrCreate(convID string) *ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.convos[convID]
	if !ok {
		st = &ConversationState{
			ID:      convID,
			Enabled: true,
			Ignored: make(map[string]time.Time),
			Memory:  NewRollingMemory(s.settings.MemoryCapacity),
			Queue:   NewPendingQueue(s.settings.QueueLimit),
		}
		s.convos[convID] = st
	}
	return st
}

// Get returns the state for convID, or nil when the conversation has never
// been seen.
func (s *Store) Get(convID string) *ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convos[convID]
}

// IDs returns a snapshot of all known conversation IDs. The periodic
// processes iterate over this snapshot so they never hold the store lock
// while touching individual conversations.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.convos))
	for id := range s.convos {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convos)
}

package engine

// MemoryEntry is one line of recent conversation context.
type MemoryEntry struct {
	Author string
	Text   string
}

// RollingMemory is a bounded, order-preserving log of recent chat lines.
// Oldest entries are evicted on overflow; append is the only mutation.
// Not safe for concurrent use — callers hold the owning conversation's lock.
type RollingMemory struct {
	entries  []MemoryEntry
	capacity int
}

// NewRollingMemory returns a memory bounded to capacity entries.
func NewRollingMemory(capacity int) *RollingMemory {
	if capacity <= 0 {
		capacity = 1
	}
	return &RollingMemory{capacity: capacity}
}

// Append records a line, evicting the oldest entry when full.
func (m *RollingMemory) Append(author, text string) {
	m.entries = append(m.entries, MemoryEntry{Author: author, Text: text})
	if len(m.entries) > m.capacity {
		excess := len(m.entries) - m.capacity
		m.entries = m.entries[excess:]
	}
}

// Tail returns a copy of the most recent n entries (all entries when fewer
// exist). The copy keeps callers from observing later appends.
func (m *RollingMemory) Tail(n int) []MemoryEntry {
	if n <= 0 || len(m.entries) == 0 {
		return nil
	}
	start := len(m.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]MemoryEntry, len(m.entries)-start)
	copy(out, m.entries[start:])
	return out
}

// Len returns the number of stored entries.
func (m *RollingMemory) Len() int { return len(m.entries) }

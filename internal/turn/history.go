package turn

import (
	"slices"
	"sync"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one line of the conversation.
type Entry struct {
	Role Role
	Text string
}

// History is the bounded conversation transcript. It keeps the entries of at
// most maxTurns rounds; when full the oldest round is evicted first, and the
// retained history never starts with an assistant entry.
//
// All methods are safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	entries  []Entry
	maxTurns int
}

// NewHistory returns an empty history bounded to maxTurns rounds. A maxTurns
// of zero or less means unbounded.
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// Append adds an entry and evicts the oldest rounds beyond the bound.
func (h *History) Append(role Role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{Role: role, Text: text})
	h.evict()
}

// Snapshot returns a copy of the entries, oldest first.
func (h *History) Snapshot() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// evict must be called with h.mu held. A round starts at a user entry; a
// failed dialogue round has no assistant entry but still counts as one.
func (h *History) evict() {
	if h.maxTurns <= 0 {
		return
	}
	start, rounds := len(h.entries), 0
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Role != RoleUser {
			continue
		}
		if rounds == h.maxTurns {
			break
		}
		rounds++
		start = i
	}
	if start == 0 {
		return
	}
	h.entries = slices.Clone(h.entries[start:])
}

package turn

import (
	"slices"
	"sync"
	"testing"
)

func entries(h *History) []string {
	var out []string
	for _, e := range h.Snapshot() {
		out = append(out, string(e.Role[0])+":"+e.Text)
	}
	return out
}

func TestHistory_EvictsOldestRounds(t *testing.T) {
	t.Parallel()

	h := NewHistory(2)
	for _, q := range []string{"1", "2", "3"} {
		h.Append(RoleUser, q)
		h.Append(RoleAssistant, q)
	}
	want := []string{"u:2", "a:2", "u:3", "a:3"}
	if got := entries(h); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestHistory_NeverStartsWithAssistant(t *testing.T) {
	t.Parallel()

	// An unanswered question shifts the round boundary.
	h := NewHistory(2)
	h.Append(RoleUser, "1")
	h.Append(RoleAssistant, "1")
	h.Append(RoleUser, "2")
	h.Append(RoleUser, "3")
	h.Append(RoleAssistant, "3")

	want := []string{"u:2", "u:3", "a:3"}
	if got := entries(h); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestHistory_UnansweredRoundsCountAsRounds(t *testing.T) {
	t.Parallel()

	h := NewHistory(1)
	for _, q := range []string{"1", "2", "3"} {
		h.Append(RoleUser, q)
	}
	if got, want := entries(h), []string{"u:3"}; !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	h.Append(RoleAssistant, "3")
	h.Append(RoleUser, "4")
	if got, want := entries(h), []string{"u:4"}; !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestHistory_Unbounded(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	for range 50 {
		h.Append(RoleUser, "q")
	}
	if h.Len() != 50 {
		t.Errorf("Len = %d, want 50", h.Len())
	}
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	h.Append(RoleUser, "hello")
	snap := h.Snapshot()
	snap[0].Text = "mutated"
	if h.Snapshot()[0].Text != "hello" {
		t.Error("Snapshot aliases internal storage")
	}
}

func TestHistory_ConcurrentUse(t *testing.T) {
	t.Parallel()

	h := NewHistory(4)
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				h.Append(RoleUser, "q")
				_ = h.Snapshot()
			}
		})
	}
	wg.Wait()
	if h.Len() != 4 {
		t.Errorf("Len = %d, want 4", h.Len())
	}
}

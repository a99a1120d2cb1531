package feeder

import (
	"aquarium-monitor/internal/models"
)

// DefaultHistoryCapacity entries kept in memory
const DefaultHistoryCapacity = 100

// history newest-first log bounded to capacity
type history struct {
	capacity int
	entries  []models.FeedHistoryEntry
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &history{
		capacity: capacity,
		entries:  make([]models.FeedHistoryEntry, 0, capacity),
	}
}

func (h *history) add(e models.FeedHistoryEntry) {
	if len(h.entries) < h.capacity {
		h.entries = append(h.entries, models.FeedHistoryEntry{})
	}
	copy(h.entries[1:], h.entries[:len(h.entries)-1])
	h.entries[0] = e
}

func (h *history) list() []models.FeedHistoryEntry {
	out := make([]models.FeedHistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *history) clear() {
	h.entries = h.entries[:0]
}

package search

import (
	"strings"
	"sync"
)

// Memory is the fallback layer index. The facade refreshes it on every
// commit so it always holds the latest records; search quality is plain
// substring matching.
type Memory struct {
	mu      sync.RWMutex
	records []LayerRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// Healthy always returns true, the in-memory index lives in-process.
func (m *Memory) Healthy() bool {
	return true
}

// Replace swaps the record set.
func (m *Memory) Replace(records []LayerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]LayerRecord(nil), records...)
}

// Search matches the query text against layer id, type, source and
// source-layer, case-insensitively. An empty query lists every layer in
// document order.
func (m *Memory) Search(q Query) ([]LayerRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	text := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	matched := make([]LayerRecord, 0)
	for _, record := range m.records {
		if text == "" || matchesRecord(record, text) {
			matched = append(matched, record)
		}
	}
	total := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func matchesRecord(record LayerRecord, text string) bool {
	return strings.Contains(strings.ToLower(record.ID), text) ||
		strings.Contains(strings.ToLower(record.Type), text) ||
		strings.Contains(strings.ToLower(record.Source), text) ||
		strings.Contains(strings.ToLower(record.SourceLayer), text)
}

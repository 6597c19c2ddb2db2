package search

import (
	"log"

	"github.com/emuanalytics/editor/internal/style"
)

// Service is the facade that tries Meilisearch first and falls back to
// the in-memory index.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise falls back to the
// in-memory index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory index error: %v", err)
		return Response{Results: []LayerRecord{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexLayers refreshes the layer index from the committed document.
// The in-memory index updates synchronously; Meilisearch updates in the
// background (fire-and-forget).
func (s *Service) IndexLayers(styleID string, doc *style.Style) {
	records := Records(styleID, doc)
	s.memory.Replace(records)

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.ReplaceLayers(records); err != nil {
			log.Printf("search: index layers for %s: %v", styleID, err)
		}
	}()
}

func nonNil(r []LayerRecord) []LayerRecord {
	if r == nil {
		return []LayerRecord{}
	}
	return r
}

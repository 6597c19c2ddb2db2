package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxLayers = "styled_layers"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}

	uidMu    sync.Mutex
	lastUIDs map[string]struct{}
}

// NewMeili creates a Meilisearch client and configures the layer index.
// The instance is usable even when the initial connection fails; the
// health monitor flips it back on once Meilisearch recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client:   client,
		done:     make(chan struct{}),
		lastUIDs: make(map[string]struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxLayers,
		PrimaryKey: "uid",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxLayers, err)
	}

	index := m.client.Index(idxLayers)
	filterable := []interface{}{"styleId", "type", "source"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxLayers, err)
	}
	searchable := []string{"id", "type", "source", "sourceLayer"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxLayers, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// ReplaceLayers swaps the indexed layer set. AddDocuments upserts by
// primary key, so only records that disappeared since the previous call
// need explicit deletes.
func (m *Meili) ReplaceLayers(records []LayerRecord) error {
	next := make(map[string]struct{}, len(records))
	for _, record := range records {
		next[record.UID] = struct{}{}
	}

	m.uidMu.Lock()
	var stale []string
	for uid := range m.lastUIDs {
		if _, ok := next[uid]; !ok {
			stale = append(stale, uid)
		}
	}
	m.lastUIDs = next
	m.uidMu.Unlock()

	index := m.client.Index(idxLayers)
	for _, uid := range stale {
		if _, err := index.DeleteDocument(uid, nil); err != nil {
			return fmt.Errorf("delete stale layer %s: %w", uid, err)
		}
	}
	if len(records) == 0 {
		return nil
	}
	if _, err := index.AddDocuments(records, nil); err != nil {
		return fmt.Errorf("index layers: %w", err)
	}
	return nil
}

// Search queries the layer index.
func (m *Meili) Search(q Query) ([]LayerRecord, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxLayers,
			Query:    q.Text,
			Limit:    limit,
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []LayerRecord
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToRecord(hit))
		}
	}
	return results, total, nil
}

func hitToRecord(hit meili.Hit) LayerRecord {
	return LayerRecord{
		UID:         decodeString(hit, "uid"),
		StyleID:     decodeString(hit, "styleId"),
		ID:          decodeString(hit, "id"),
		Type:        decodeString(hit, "type"),
		Source:      decodeString(hit, "source"),
		SourceLayer: decodeString(hit, "sourceLayer"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

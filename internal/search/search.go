// Package search indexes the committed style's layers so clients can
// find them by id, type, or source. Meilisearch is the primary backend
// with an in-memory fallback that is always available.
package search

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/emuanalytics/editor/internal/style"
)

// LayerRecord is the data we index for a layer.
type LayerRecord struct {
	UID         string `json:"uid"`
	StyleID     string `json:"styleId"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	SourceLayer string `json:"sourceLayer,omitempty"`
}

// Query describes a layer search request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []LayerRecord `json:"results"`
	Total   int           `json:"total"`
	Query   string        `json:"query"`
}

// Searcher can execute a layer search.
type Searcher interface {
	Search(q Query) ([]LayerRecord, int, error)
	Healthy() bool
}

// Records builds the index records for every layer in the document, in
// document order.
func Records(styleID string, doc *style.Style) []LayerRecord {
	if doc == nil {
		return []LayerRecord{}
	}
	records := make([]LayerRecord, 0, len(doc.Layers))
	for _, layer := range doc.Layers {
		records = append(records, LayerRecord{
			UID:         recordUID(styleID, layer.ID),
			StyleID:     styleID,
			ID:          layer.ID,
			Type:        layer.Type,
			Source:      layer.Source,
			SourceLayer: layer.SourceLayer,
		})
	}
	return records
}

func recordUID(styleID, layerID string) string {
	sum := sha1.Sum([]byte(styleID + "|" + layerID))
	return hex.EncodeToString(sum[:])[:12]
}

// Package style models MapLibre style documents and their sources and layers.
package style

import (
	"bytes"
	"encoding/json"
	"fmt"

	v5 "github.com/brunoga/deep/v5"
)

const (
	SourceTypeVector    = "vector"
	SourceTypeRaster    = "raster"
	SourceTypeRasterDEM = "raster-dem"
	SourceTypeGeoJSON   = "geojson"
	SourceTypeImage     = "image"
	SourceTypeVideo     = "video"
)

const (
	VisibilityVisible = "visible"
	VisibilityNone    = "none"
)

// Style is a parsed style document (spec version 8).
type Style struct {
	Version  int               `json:"version"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Center   []float64         `json:"center,omitempty"`
	Zoom     *float64          `json:"zoom,omitempty"`
	Bearing  *float64          `json:"bearing,omitempty"`
	Pitch    *float64          `json:"pitch,omitempty"`
	Sources  map[string]Source `json:"sources"`
	Sprite   string            `json:"sprite,omitempty"`
	Glyphs   string            `json:"glyphs,omitempty"`
	Layers   []Layer           `json:"layers"`
}

// Source is a single entry in the style's sources object.
type Source struct {
	Type        string   `json:"type"`
	URL         string   `json:"url,omitempty"`
	Tiles       []string `json:"tiles,omitempty"`
	TileSize    int      `json:"tileSize,omitempty"`
	Data        any      `json:"data,omitempty"`
	MinZoom     *float64 `json:"minzoom,omitempty"`
	MaxZoom     *float64 `json:"maxzoom,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
}

// Layer is a single entry in the style's layer list. Order matters: layers
// render bottom to top in list order.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty"`
	MinZoom     *float64       `json:"minzoom,omitempty"`
	MaxZoom     *float64       `json:"maxzoom,omitempty"`
	Filter      any            `json:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SourceDescriptor summarizes what an editor needs to know about a source:
// its kind and the data layer names selectable from it.
type SourceDescriptor struct {
	Type   string   `json:"type"`
	Layers []string `json:"layers"`
}

// Empty returns a minimal valid document to edit when no saved style exists.
func Empty() *Style {
	return &Style{
		Version: 8,
		Sources: map[string]Source{},
		Layers:  []Layer{},
	}
}

func Parse(data []byte) (*Style, error) {
	var s Style
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode style document: %w", err)
	}
	return &s, nil
}

// Encode renders the document as indented JSON with a trailing newline,
// suitable for writing to disk or committing to an archive.
func (s *Style) Encode() ([]byte, error) {
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode style document: %w", err)
	}
	return append(payload, '\n'), nil
}

// Copy returns a deep copy sharing no mutable state with the receiver.
func (s *Style) Copy() *Style {
	copied := v5.Clone(*s)
	return &copied
}

func (l Layer) Copy() Layer {
	return v5.Clone(l)
}

// Visibility reports the layer's effective layout visibility. A layer with
// no layout block, or no visibility property, is visible.
func (l Layer) Visibility() string {
	if l.Layout == nil {
		return VisibilityVisible
	}
	if value, ok := l.Layout["visibility"].(string); ok && value == VisibilityNone {
		return VisibilityNone
	}
	return VisibilityVisible
}

// LayerIndex returns the position of the layer with the given id, or -1.
func (s *Style) LayerIndex(id string) int {
	for i, layer := range s.Layers {
		if layer.ID == id {
			return i
		}
	}
	return -1
}

// Normalize renders the document in a canonical single-line form so two
// documents can be compared independent of formatting.
func Normalize(s *Style) []byte {
	if s == nil {
		return nil
	}
	normalized, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return normalized
}

// Equal reports whether two documents are semantically identical.
func Equal(a, b *Style) bool {
	return bytes.Equal(Normalize(a), Normalize(b))
}

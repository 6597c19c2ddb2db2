// Package stylespec carries an embedded copy of the style specification
// reference and answers questions about it: allowed layer and source types,
// required root fields, and per-field default value tables.
package stylespec

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

//go:embed latest.json
var latestJSON []byte

// Spec is a parsed style specification reference. The root field table is
// mutable: metadata downloaders merge discovered glyph and sprite names into
// it, so access is guarded.
type Spec struct {
	mu   sync.RWMutex
	doc  map[string]any
	root map[string]any
}

func Parse(data []byte) (*Spec, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode style spec: %w", err)
	}
	root, ok := doc["$root"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("style spec missing $root table")
	}
	return &Spec{doc: doc, root: root}, nil
}

// Latest parses the embedded reference. Each call returns an independent
// instance so merged values do not leak between consumers.
func Latest() (*Spec, error) {
	return Parse(latestJSON)
}

// Version returns the specification version the reference describes.
func (s *Spec) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if value, ok := s.doc["$version"].(float64); ok {
		return int(value)
	}
	return 0
}

// RequiredRoot lists the root fields the reference marks required, sorted.
func (s *Spec) RequiredRoot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := make([]string, 0, len(s.root))
	for name, raw := range s.root {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if required, _ := entry["required"].(bool); required {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// LayerTypes lists the layer types the reference allows.
func (s *Spec) LayerTypes() []string {
	return s.sectionValues("layer", "type")
}

// SourceTypes lists the source types the reference allows.
func (s *Spec) SourceTypes() []string {
	return s.sectionValues("source", "type")
}

func (s *Spec) sectionValues(section, field string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sectionDoc, ok := s.doc[section].(map[string]any)
	if !ok {
		return nil
	}
	entry, ok := sectionDoc[field].(map[string]any)
	if !ok {
		return nil
	}
	return stringValues(entry["values"])
}

// RootValues returns the value table recorded for a root field, if any.
func (s *Spec) RootValues(field string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.root[field].(map[string]any)
	if !ok {
		return nil
	}
	return stringValues(entry["values"])
}

// SetRootValues replaces the value table for a root field. Used to merge
// the glyph font stacks and sprite names discovered for the current document.
func (s *Spec) SetRootValues(field string, values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.root[field].(map[string]any)
	if !ok {
		entry = map[string]any{}
		s.root[field] = entry
	}
	items := make([]any, 0, len(values))
	for _, value := range values {
		items = append(items, value)
	}
	entry["values"] = items
}

func stringValues(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}
	return values
}

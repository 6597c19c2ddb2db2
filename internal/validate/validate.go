// Package validate checks style documents against the style specification
// reference before they are committed.
package validate

import (
	"fmt"
	"sort"

	"github.com/emuanalytics/editor/internal/style"
	"github.com/emuanalytics/editor/internal/stylespec"
)

// Error is a single validation finding.
type Error struct {
	Message string
}

func (e Error) Error() string {
	return e.Message
}

// Messages flattens findings for transport payloads.
func Messages(errs []Error) []string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Message)
	}
	return messages
}

// Document validates a candidate document and returns every finding, not
// just the first. A nil return means the document is valid.
func Document(doc *style.Style, spec *stylespec.Spec) []Error {
	if doc == nil {
		return []Error{{Message: "style document is empty"}}
	}

	var errs []Error

	if doc.Version != spec.Version() {
		errs = append(errs, Error{Message: fmt.Sprintf("version: expected %d, got %d", spec.Version(), doc.Version)})
	}

	for _, field := range spec.RequiredRoot() {
		switch field {
		case "sources":
			if doc.Sources == nil {
				errs = append(errs, Error{Message: "sources: required field missing"})
			}
		case "layers":
			if doc.Layers == nil {
				errs = append(errs, Error{Message: "layers: required field missing"})
			}
		}
	}

	sourceTypes := asSet(spec.SourceTypes())
	for _, name := range sortedSourceNames(doc.Sources) {
		source := doc.Sources[name]
		if _, ok := sourceTypes[source.Type]; !ok {
			errs = append(errs, Error{Message: fmt.Sprintf("sources[%q]: unknown source type %q", name, source.Type)})
		}
	}

	layerTypes := asSet(spec.LayerTypes())
	seen := make(map[string]struct{}, len(doc.Layers))
	for i, layer := range doc.Layers {
		if layer.ID == "" {
			errs = append(errs, Error{Message: fmt.Sprintf("layers[%d]: missing layer id", i)})
		} else if _, dup := seen[layer.ID]; dup {
			errs = append(errs, Error{Message: fmt.Sprintf("layers[%d]: duplicate layer id %q", i, layer.ID)})
		} else {
			seen[layer.ID] = struct{}{}
		}

		if _, ok := layerTypes[layer.Type]; !ok {
			errs = append(errs, Error{Message: fmt.Sprintf("layers[%d]: unknown layer type %q", i, layer.Type)})
		}

		if layer.Type == "background" {
			continue
		}
		if layer.Source == "" {
			errs = append(errs, Error{Message: fmt.Sprintf("layers[%d]: missing source", i)})
			continue
		}
		if _, ok := doc.Sources[layer.Source]; !ok {
			errs = append(errs, Error{Message: fmt.Sprintf("layers[%d]: source %q is not defined", i, layer.Source)})
		}
	}

	return errs
}

func asSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func sortedSourceNames(sources map[string]style.Source) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

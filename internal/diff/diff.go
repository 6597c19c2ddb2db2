// Package diff computes human-readable change summaries between two style
// document revisions. The editor surfaces these after undo and redo and
// uses the first line as the archive commit message.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/emuanalytics/editor/internal/style"
)

const (
	TypeLayerMoved    = "layer-moved"
	TypeLayerChanged  = "layer-changed"
	TypeLayerRenamed  = "layer-renamed"
	TypeLayerAdded    = "layer-added"
	TypeLayerRemoved  = "layer-removed"
	TypeSourceAdded   = "source-added"
	TypeSourceRemoved = "source-removed"
	TypeSourceChanged = "source-changed"
	TypeStyleChanged  = "style-changed"
)

// Change is a single difference between two revisions.
type Change struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Messages flattens changes for transport payloads.
func Messages(changes []Change) []string {
	messages := make([]string, 0, len(changes))
	for _, change := range changes {
		messages = append(messages, change.Message)
	}
	return messages
}

// Changes compares two revisions and returns a deterministic list of
// differences. Layers are matched by id; a removed and an added layer with
// identical content are reported as a rename.
func Changes(from, to *style.Style) []Change {
	if from == nil {
		from = style.Empty()
	}
	if to == nil {
		to = style.Empty()
	}

	var changes []Change
	changes = append(changes, layerChanges(from, to)...)
	changes = append(changes, sourceChanges(from, to)...)
	changes = append(changes, rootChanges(from, to)...)

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changeTypeRank(changes[i].Type) < changeTypeRank(changes[j].Type)
		}
		if changes[i].Subject != changes[j].Subject {
			return changes[i].Subject < changes[j].Subject
		}
		return changes[i].Message < changes[j].Message
	})
	return changes
}

func layerChanges(from, to *style.Style) []Change {
	fromIndex := make(map[string]int, len(from.Layers))
	for i, layer := range from.Layers {
		fromIndex[layer.ID] = i
	}
	toIndex := make(map[string]int, len(to.Layers))
	for i, layer := range to.Layers {
		toIndex[layer.ID] = i
	}

	var removed, added []string
	for id := range fromIndex {
		if _, ok := toIndex[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id := range toIndex {
		if _, ok := fromIndex[id]; !ok {
			added = append(added, id)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	var changes []Change
	consumed := make(map[string]bool, len(added))
	for _, oldID := range removed {
		fingerprint := layerFingerprint(from.Layers[fromIndex[oldID]])
		renamed := false
		for _, newID := range added {
			if consumed[newID] {
				continue
			}
			if layerFingerprint(to.Layers[toIndex[newID]]) == fingerprint {
				consumed[newID] = true
				renamed = true
				changes = append(changes, Change{
					Type:    TypeLayerRenamed,
					Subject: oldID,
					Message: fmt.Sprintf("renamed layer %q to %q", oldID, newID),
				})
				break
			}
		}
		if !renamed {
			changes = append(changes, Change{
				Type:    TypeLayerRemoved,
				Subject: oldID,
				Message: fmt.Sprintf("removed layer %q", oldID),
			})
		}
	}
	for _, newID := range added {
		if consumed[newID] {
			continue
		}
		changes = append(changes, Change{
			Type:    TypeLayerAdded,
			Subject: newID,
			Message: fmt.Sprintf("added layer %q", newID),
		})
	}

	for id, fromPos := range fromIndex {
		toPos, ok := toIndex[id]
		if !ok {
			continue
		}
		if layerFingerprint(from.Layers[fromPos]) != layerFingerprint(to.Layers[toPos]) {
			changes = append(changes, Change{
				Type:    TypeLayerChanged,
				Subject: id,
				Message: fmt.Sprintf("changed layer %q", id),
			})
			continue
		}
		if fromPos != toPos {
			changes = append(changes, Change{
				Type:    TypeLayerMoved,
				Subject: id,
				Message: fmt.Sprintf("moved layer %q from position %d to %d", id, fromPos, toPos),
			})
		}
	}

	return changes
}

func sourceChanges(from, to *style.Style) []Change {
	var changes []Change
	for name, fromSource := range from.Sources {
		toSource, ok := to.Sources[name]
		if !ok {
			changes = append(changes, Change{
				Type:    TypeSourceRemoved,
				Subject: name,
				Message: fmt.Sprintf("removed source %q", name),
			})
			continue
		}
		if !jsonEqual(fromSource, toSource) {
			changes = append(changes, Change{
				Type:    TypeSourceChanged,
				Subject: name,
				Message: fmt.Sprintf("changed source %q", name),
			})
		}
	}
	for name := range to.Sources {
		if _, ok := from.Sources[name]; !ok {
			changes = append(changes, Change{
				Type:    TypeSourceAdded,
				Subject: name,
				Message: fmt.Sprintf("added source %q", name),
			})
		}
	}
	return changes
}

func rootChanges(from, to *style.Style) []Change {
	fields := []struct {
		name    string
		changed bool
	}{
		{name: "name", changed: from.Name != to.Name},
		{name: "metadata", changed: !jsonEqual(from.Metadata, to.Metadata)},
		{name: "center", changed: !jsonEqual(from.Center, to.Center)},
		{name: "zoom", changed: !jsonEqual(from.Zoom, to.Zoom)},
		{name: "bearing", changed: !jsonEqual(from.Bearing, to.Bearing)},
		{name: "pitch", changed: !jsonEqual(from.Pitch, to.Pitch)},
		{name: "sprite", changed: from.Sprite != to.Sprite},
		{name: "glyphs", changed: from.Glyphs != to.Glyphs},
	}

	var changes []Change
	for _, field := range fields {
		if !field.changed {
			continue
		}
		changes = append(changes, Change{
			Type:    TypeStyleChanged,
			Subject: field.name,
			Message: fmt.Sprintf("changed %s", field.name),
		})
	}
	return changes
}

func changeTypeRank(changeType string) int {
	switch changeType {
	case TypeLayerMoved:
		return 0
	case TypeLayerChanged:
		return 1
	case TypeLayerRenamed:
		return 2
	case TypeLayerAdded:
		return 3
	case TypeLayerRemoved:
		return 4
	case TypeSourceAdded:
		return 5
	case TypeSourceRemoved:
		return 6
	case TypeSourceChanged:
		return 7
	case TypeStyleChanged:
		return 8
	default:
		return 9
	}
}

// layerFingerprint renders a layer with its id cleared so renamed layers
// with identical content compare equal.
func layerFingerprint(layer style.Layer) string {
	layer.ID = ""
	data, err := json.Marshal(layer)
	if err != nil {
		return ""
	}
	return string(data)
}

func jsonEqual(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(left) == string(right)
}

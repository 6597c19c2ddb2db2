// Package layers implements edits on a style's layer list. Every operation
// is copy-on-write: the input slice is never mutated, and operations that
// change nothing return it unchanged.
package layers

import (
	"github.com/emuanalytics/editor/internal/style"
)

// Move relocates the layer at oldIndex to newIndex. Out-of-range indices
// are clamped to the list bounds. The returned selection tracks the moved
// layer only when the selection was exactly oldIndex; otherwise it stays
// on its index even though a different layer may now occupy it. The bool
// reports whether anything moved.
func Move(list []style.Layer, oldIndex, newIndex, selected int) ([]style.Layer, int, bool) {
	if len(list) == 0 {
		return list, selected, false
	}
	oldIndex = clampIndex(oldIndex, len(list)-1)
	newIndex = clampIndex(newIndex, len(list)-1)
	if oldIndex == newIndex {
		return list, selected, false
	}

	next := make([]style.Layer, 0, len(list))
	next = append(next, list[:oldIndex]...)
	next = append(next, list[oldIndex+1:]...)
	next = append(next, style.Layer{})
	copy(next[newIndex+1:], next[newIndex:])
	next[newIndex] = list[oldIndex]

	if selected == oldIndex {
		selected = newIndex
	}
	return next, selected, true
}

// Destroy removes the layer with the given id. Unknown ids are a no-op.
func Destroy(list []style.Layer, id string) []style.Layer {
	index := indexOf(list, id)
	if index < 0 {
		return list
	}
	next := make([]style.Layer, 0, len(list)-1)
	next = append(next, list[:index]...)
	next = append(next, list[index+1:]...)
	return next
}

// Copy duplicates the layer with the given id and inserts the duplicate
// directly after the original. The duplicate's id gets a "-copy" suffix;
// whether that collides with an existing id is left to validation.
func Copy(list []style.Layer, id string) []style.Layer {
	index := indexOf(list, id)
	if index < 0 {
		return list
	}
	duplicate := list[index].Copy()
	duplicate.ID = duplicate.ID + "-copy"

	next := make([]style.Layer, 0, len(list)+1)
	next = append(next, list[:index+1]...)
	next = append(next, duplicate)
	next = append(next, list[index+1:]...)
	return next
}

// ToggleVisibility flips the layer's layout visibility between visible and
// none, writing the value explicitly even when the layer relied on the
// default before.
func ToggleVisibility(list []style.Layer, id string) []style.Layer {
	index := indexOf(list, id)
	if index < 0 {
		return list
	}

	layer := list[index].Copy()
	if layer.Layout == nil {
		layer.Layout = map[string]any{}
	}
	if layer.Visibility() == style.VisibilityNone {
		layer.Layout["visibility"] = style.VisibilityVisible
	} else {
		layer.Layout["visibility"] = style.VisibilityNone
	}

	next := make([]style.Layer, len(list))
	copy(next, list)
	next[index] = layer
	return next
}

// RenameID changes a layer's id in place. Collisions with existing ids are
// left to validation.
func RenameID(list []style.Layer, id, newID string) []style.Layer {
	index := indexOf(list, id)
	if index < 0 {
		return list
	}
	next := make([]style.Layer, len(list))
	copy(next, list)
	next[index].ID = newID
	return next
}

// Replace swaps the layer with the given id for the provided one, keeping
// its position in the list.
func Replace(list []style.Layer, id string, layer style.Layer) []style.Layer {
	index := indexOf(list, id)
	if index < 0 {
		return list
	}
	next := make([]style.Layer, len(list))
	copy(next, list)
	next[index] = layer
	return next
}

func indexOf(list []style.Layer, id string) int {
	for i, layer := range list {
		if layer.ID == id {
			return i
		}
	}
	return -1
}

func clampIndex(index, upper int) int {
	if index < 0 {
		return 0
	}
	if index > upper {
		return upper
	}
	return index
}

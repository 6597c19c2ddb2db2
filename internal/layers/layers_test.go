package layers

import (
	"reflect"
	"testing"

	"github.com/emuanalytics/editor/internal/style"
)

func testList() []style.Layer {
	return []style.Layer{
		{ID: "background", Type: "background"},
		{ID: "water", Type: "fill", Source: "streets", SourceLayer: "water", Paint: map[string]any{"fill-color": "#a0c8f0"}},
		{ID: "roads", Type: "line", Source: "streets", SourceLayer: "roads"},
	}
}

func ids(list []style.Layer) []string {
	out := make([]string, 0, len(list))
	for _, layer := range list {
		out = append(out, layer.ID)
	}
	return out
}

func TestMove(t *testing.T) {
	tests := []struct {
		name         string
		oldIndex     int
		newIndex     int
		selected     int
		wantIDs      []string
		wantSelected int
		wantMoved    bool
	}{
		{
			name:     "bottom to top",
			oldIndex: 0, newIndex: 2, selected: 0,
			wantIDs:      []string{"water", "roads", "background"},
			wantSelected: 2, wantMoved: true,
		},
		{
			name:     "top to bottom",
			oldIndex: 2, newIndex: 0, selected: 2,
			wantIDs:      []string{"roads", "background", "water"},
			wantSelected: 0, wantMoved: true,
		},
		{
			name:     "selection stays on index when another layer moves",
			oldIndex: 0, newIndex: 2, selected: 1,
			wantIDs:      []string{"water", "roads", "background"},
			wantSelected: 1, wantMoved: true,
		},
		{
			name:     "indices clamp to bounds",
			oldIndex: -3, newIndex: 99, selected: 0,
			wantIDs:      []string{"water", "roads", "background"},
			wantSelected: 2, wantMoved: true,
		},
		{
			name:     "equal indices after clamping are a no-op",
			oldIndex: 5, newIndex: 99, selected: 1,
			wantIDs:      []string{"background", "water", "roads"},
			wantSelected: 1, wantMoved: false,
		},
		{
			name:     "same index is a no-op",
			oldIndex: 1, newIndex: 1, selected: 1,
			wantIDs:      []string{"background", "water", "roads"},
			wantSelected: 1, wantMoved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := testList()
			got, selected, moved := Move(list, tt.oldIndex, tt.newIndex, tt.selected)
			if !reflect.DeepEqual(ids(got), tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids(got), tt.wantIDs)
			}
			if selected != tt.wantSelected {
				t.Errorf("selected = %d, want %d", selected, tt.wantSelected)
			}
			if moved != tt.wantMoved {
				t.Errorf("moved = %v, want %v", moved, tt.wantMoved)
			}
			if want := []string{"background", "water", "roads"}; !reflect.DeepEqual(ids(list), want) {
				t.Errorf("input list mutated: %v", ids(list))
			}
		})
	}
}

func TestMoveEmptyList(t *testing.T) {
	got, selected, moved := Move(nil, 0, 1, 0)
	if got != nil || selected != 0 || moved {
		t.Fatalf("Move(nil) = %v, %d, %v", got, selected, moved)
	}
}

func TestDestroy(t *testing.T) {
	list := testList()
	got := Destroy(list, "water")
	if want := []string{"background", "roads"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
	if len(list) != 3 {
		t.Error("input list mutated")
	}
}

func TestDestroyUnknownID(t *testing.T) {
	list := testList()
	got := Destroy(list, "missing")
	if !reflect.DeepEqual(ids(got), ids(list)) {
		t.Errorf("expected unchanged list, got %v", ids(got))
	}
}

func TestCopy(t *testing.T) {
	list := testList()
	got := Copy(list, "water")

	want := []string{"background", "water", "water-copy", "roads"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}

	// The duplicate must not share paint state with the original.
	got[2].Paint["fill-color"] = "#000000"
	if got[1].Paint["fill-color"] != "#a0c8f0" {
		t.Error("duplicate shares paint map with original")
	}
	if len(list) != 3 {
		t.Error("input list mutated")
	}
}

func TestCopyUnknownID(t *testing.T) {
	list := testList()
	if got := Copy(list, "missing"); len(got) != 3 {
		t.Errorf("expected unchanged list, got %v", ids(got))
	}
}

func TestToggleVisibility(t *testing.T) {
	tests := []struct {
		name   string
		layout map[string]any
		want   string
	}{
		{name: "unset layout hides", layout: nil, want: style.VisibilityNone},
		{name: "visible hides", layout: map[string]any{"visibility": "visible"}, want: style.VisibilityNone},
		{name: "hidden shows", layout: map[string]any{"visibility": "none"}, want: style.VisibilityVisible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := []style.Layer{{ID: "roads", Type: "line", Source: "streets", Layout: tt.layout}}
			got := ToggleVisibility(list, "roads")
			if value := got[0].Layout["visibility"]; value != tt.want {
				t.Errorf("visibility = %v, want %q", value, tt.want)
			}
			// Toggling writes the value explicitly even when it was unset.
			if got[0].Layout == nil {
				t.Error("expected layout block to exist after toggle")
			}
			if tt.layout != nil && list[0].Layout["visibility"] != tt.layout["visibility"] {
				t.Error("input layer mutated")
			}
		})
	}
}

func TestToggleVisibilityTwiceRestoresLayer(t *testing.T) {
	list := []style.Layer{{
		ID:     "roads",
		Type:   "line",
		Source: "streets",
		Layout: map[string]any{"visibility": "visible", "line-cap": "round"},
	}}
	got := ToggleVisibility(ToggleVisibility(list, "roads"), "roads")
	if !reflect.DeepEqual(got, list) {
		t.Errorf("double toggle = %+v, want %+v", got, list)
	}
}

func TestToggleVisibilityUnknownID(t *testing.T) {
	list := testList()
	if got := ToggleVisibility(list, "missing"); !reflect.DeepEqual(ids(got), ids(list)) {
		t.Errorf("expected unchanged list, got %v", ids(got))
	}
}

func TestRenameID(t *testing.T) {
	list := testList()
	got := RenameID(list, "water", "ocean")
	if got[1].ID != "ocean" {
		t.Errorf("renamed id = %q, want ocean", got[1].ID)
	}
	if list[1].ID != "water" {
		t.Error("input list mutated")
	}
}

func TestRenameIDUnknown(t *testing.T) {
	list := testList()
	if got := RenameID(list, "missing", "other"); !reflect.DeepEqual(ids(got), ids(list)) {
		t.Errorf("expected unchanged list, got %v", ids(got))
	}
}

func TestReplace(t *testing.T) {
	list := testList()
	got := Replace(list, "roads", style.Layer{ID: "roads", Type: "line", Source: "streets", SourceLayer: "roads", Paint: map[string]any{"line-width": 2.0}})
	if got[2].Paint["line-width"] != 2.0 {
		t.Errorf("replacement not applied: %v", got[2].Paint)
	}
	if list[2].Paint != nil {
		t.Error("input list mutated")
	}
}

func TestReplaceUnknownID(t *testing.T) {
	list := testList()
	if got := Replace(list, "missing", style.Layer{ID: "missing"}); len(got) != 3 {
		t.Errorf("expected unchanged list, got %v", ids(got))
	}
}

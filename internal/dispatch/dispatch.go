// Package dispatch maps keyboard events to editor actions. The modifier
// policy is chosen once at startup from the configured platform: Meta+Z
// (with Shift for redo) on darwin, Ctrl+Z/Ctrl+Y everywhere else.
package dispatch

import (
	"strings"
)

// Action names an editor command a key event resolved to.
type Action string

const (
	ActionUndo            Action = "undo"
	ActionRedo            Action = "redo"
	ActionToggleOpen      Action = "toggle-open"
	ActionToggleExport    Action = "toggle-export"
	ActionToggleSources   Action = "toggle-sources"
	ActionToggleSettings  Action = "toggle-settings"
	ActionToggleShortcuts Action = "toggle-shortcuts"
	ActionToggleInspect   Action = "toggle-inspect"
	ActionFocusMap        Action = "focus-map"
)

// KeyEvent mirrors the browser KeyboardEvent fields clients report.
type KeyEvent struct {
	Key          string `json:"key"`
	Ctrl         bool   `json:"ctrlKey"`
	Meta         bool   `json:"metaKey"`
	Shift        bool   `json:"shiftKey"`
	Alt          bool   `json:"altKey"`
	InputFocused bool   `json:"inputFocused"`
}

type modifierPolicy interface {
	resolve(event KeyEvent) (Action, bool)
}

// metaPolicy handles Meta+Z and Meta+Shift+Z on darwin.
type metaPolicy struct{}

func (metaPolicy) resolve(event KeyEvent) (Action, bool) {
	if !event.Meta || event.Ctrl || event.Alt {
		return "", false
	}
	if strings.ToLower(event.Key) != "z" {
		return "", false
	}
	if event.Shift {
		return ActionRedo, true
	}
	return ActionUndo, true
}

// ctrlPolicy handles Ctrl+Z and Ctrl+Y on every other platform.
type ctrlPolicy struct{}

func (ctrlPolicy) resolve(event KeyEvent) (Action, bool) {
	if !event.Ctrl || event.Meta || event.Alt {
		return "", false
	}
	switch strings.ToLower(event.Key) {
	case "z":
		if !event.Shift {
			return ActionUndo, true
		}
	case "y":
		return ActionRedo, true
	}
	return "", false
}

// Dispatcher resolves key events to at most one action.
type Dispatcher struct {
	policy modifierPolicy
	bare   map[string]Action
}

func New(platform string) *Dispatcher {
	var policy modifierPolicy = ctrlPolicy{}
	if strings.ToLower(strings.TrimSpace(platform)) == "darwin" {
		policy = metaPolicy{}
	}
	return &Dispatcher{
		policy: policy,
		bare: map[string]Action{
			"o": ActionToggleOpen,
			"e": ActionToggleExport,
			"d": ActionToggleSources,
			"s": ActionToggleSettings,
			"?": ActionToggleShortcuts,
			"i": ActionToggleInspect,
			"m": ActionFocusMap,
		},
	}
}

// Dispatch resolves an event. Modifier shortcuts apply even while an input
// is focused; bare keys are suppressed while typing, and Escape never
// produces an action because clients use it to leave input focus.
func (d *Dispatcher) Dispatch(event KeyEvent) (Action, bool) {
	if action, ok := d.policy.resolve(event); ok {
		return action, true
	}
	if event.InputFocused || event.Ctrl || event.Meta || event.Alt {
		return "", false
	}
	if strings.ToLower(event.Key) == "escape" {
		return "", false
	}
	action, ok := d.bare[strings.ToLower(event.Key)]
	return action, ok
}

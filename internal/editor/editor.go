// Package editor owns the committed style document and every mutation of
// it: validation, revision history, persistence, selection, and the
// derived source descriptor table.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"

	"github.com/emuanalytics/editor/internal/diff"
	"github.com/emuanalytics/editor/internal/history"
	"github.com/emuanalytics/editor/internal/layers"
	"github.com/emuanalytics/editor/internal/metadata"
	"github.com/emuanalytics/editor/internal/reconcile"
	"github.com/emuanalytics/editor/internal/store"
	"github.com/emuanalytics/editor/internal/style"
	"github.com/emuanalytics/editor/internal/stylespec"
	"github.com/emuanalytics/editor/internal/validate"
)

// ErrLayerNotFound is returned by layer operations when no layer has the
// requested id.
var ErrLayerNotFound = errors.New("layer not found")

// Outcome reports what a submitted candidate did to the committed document.
// Style is always the committed document after the call, whether or not
// the candidate was accepted.
type Outcome struct {
	Accepted bool
	Errors   []string
	Style    *style.Style
}

// State is a full snapshot of the editor for transport payloads.
type State struct {
	Style     *style.Style                      `json:"style"`
	Selection int                               `json:"selection"`
	Errors    []string                          `json:"errors"`
	Infos     []string                          `json:"infos"`
	Sources   map[string]style.SourceDescriptor `json:"sources"`
}

// RevisionInfo summarizes one history entry.
type RevisionInfo struct {
	Index      int  `json:"index"`
	LayerCount int  `json:"layerCount"`
	Current    bool `json:"current"`
}

type sourceReconciler interface {
	Reconcile(ctx context.Context, doc *style.Style, known map[string]style.SourceDescriptor, merge reconcile.MergeFunc) map[string]style.SourceDescriptor
}

type metadataClient interface {
	UpdateGlyphs(ctx context.Context, doc *style.Style)
	UpdateSprite(ctx context.Context, doc *style.Style)
}

// Editor serializes every mutation behind one mutex. Background fetch
// completions re-enter through mergeDescriptor and replace derived state
// wholesale from a fresh snapshot.
type Editor struct {
	mu    sync.Mutex
	spec  *stylespec.Spec
	store store.Store
	rec   sourceReconciler
	meta  metadataClient
	hist  *history.Store

	current   *style.Style
	selection int
	errs      []string
	infos     []string
	sources   map[string]style.SourceDescriptor
}

func New(spec *stylespec.Spec, st store.Store, rec *reconcile.Reconciler, meta *metadata.Client) *Editor {
	e := &Editor{
		spec:    spec,
		store:   st,
		hist:    history.New(),
		current: style.Empty(),
		sources: map[string]style.SourceDescriptor{},
	}
	if rec != nil {
		e.rec = rec
	}
	if meta != nil {
		e.meta = meta
	}
	return e
}

// Bootstrap seeds the editor with its first document. A non-nil initial
// document (fetched from a configured style URL) wins over the persisted
// one and is written through to the store. Without one the store is
// loaded; a missing document starts an empty style. Load failures also
// fall back to an empty style and are returned so the caller can warn.
func (e *Editor) Bootstrap(ctx context.Context, initial *style.Style) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := initial
	var loadErr error
	if doc == nil {
		loaded, err := e.store.Load(ctx)
		switch {
		case err == nil:
			doc = loaded
		case errors.Is(err, store.ErrNotFound):
			doc = style.Empty()
		default:
			loadErr = fmt.Errorf("load style: %w", err)
			doc = style.Empty()
		}
	} else if err := e.store.Save(ctx, doc); err != nil {
		log.Printf("editor: save bootstrap style: %v", err)
	}

	e.hist.Add(doc)
	e.current = e.hist.Current()
	e.selection = clampSelection(e.selection, len(e.current.Layers))
	e.errs = nil
	e.infos = nil
	e.triggerMetadata(nil, e.current)
	e.reconcileLocked(e.current)
	return loadErr
}

// Submit validates the candidate and, when it passes, commits it: the
// candidate becomes a new revision, is persisted, and replaces the
// committed document. A rejected candidate changes nothing except the
// error state, but still drives source reconciliation so descriptors for
// sources introduced by the rejected edit stay warm.
func (e *Editor) Submit(ctx context.Context, candidate *style.Style) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(ctx, candidate)
}

func (e *Editor) submitLocked(ctx context.Context, candidate *style.Style) Outcome {
	if errs := validate.Document(candidate, e.spec); len(errs) > 0 {
		e.reconcileLocked(candidate)
		e.errs = validate.Messages(errs)
		return Outcome{Errors: append([]string(nil), e.errs...), Style: e.current.Copy()}
	}

	e.triggerMetadata(e.current, candidate)
	e.hist.Add(candidate)
	e.infos = nil
	if err := e.store.Save(ctx, candidate); err != nil {
		log.Printf("editor: save style: %v", err)
		e.infos = []string{fmt.Sprintf("save failed: %v", err)}
	}
	e.current = e.hist.Current()
	e.selection = clampSelection(e.selection, len(e.current.Layers))
	e.errs = nil
	e.reconcileLocked(e.current)
	return Outcome{Accepted: true, Style: e.current.Copy()}
}

// Undo steps back one revision. The restored document is persisted and
// reconciled but not re-validated, and no new revision is recorded. When
// already at the oldest revision nothing changes and the returned changes
// are nil.
func (e *Editor) Undo(ctx context.Context) ([]diff.Change, *style.Style) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, moved := e.hist.Undo()
	if !moved {
		e.infos = nil
		return nil, e.current.Copy()
	}
	return e.restoreLocked(ctx, doc)
}

// Redo steps forward one revision, mirroring Undo.
func (e *Editor) Redo(ctx context.Context) ([]diff.Change, *style.Style) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, moved := e.hist.Redo()
	if !moved {
		e.infos = nil
		return nil, e.current.Copy()
	}
	return e.restoreLocked(ctx, doc)
}

func (e *Editor) restoreLocked(ctx context.Context, doc *style.Style) ([]diff.Change, *style.Style) {
	if err := e.store.Save(ctx, doc); err != nil {
		log.Printf("editor: save style: %v", err)
	}
	changes := diff.Changes(e.current, doc)
	e.current = doc
	e.selection = clampSelection(e.selection, len(e.current.Layers))
	e.infos = diff.Messages(changes)
	e.errs = nil
	e.reconcileLocked(e.current)
	return changes, e.current.Copy()
}

// MoveLayer relocates the layer at oldIndex to newIndex and submits the
// result. Indices are clamped; a move that lands where it started is a
// no-op reported as accepted. The selection follows the moved layer only
// when it sat exactly on oldIndex.
func (e *Editor) MoveLayer(ctx context.Context, oldIndex, newIndex int) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := e.current.Copy()
	next, sel, moved := layers.Move(candidate.Layers, oldIndex, newIndex, e.selection)
	if !moved {
		return Outcome{Accepted: true, Style: e.current.Copy()}
	}
	candidate.Layers = next
	out := e.submitLocked(ctx, candidate)
	if out.Accepted {
		e.selection = clampSelection(sel, len(e.current.Layers))
	}
	return out
}

// DestroyLayer removes the layer with the given id and submits the result.
func (e *Editor) DestroyLayer(ctx context.Context, id string) (Outcome, error) {
	return e.mutateLayers(ctx, id, func(list []style.Layer) []style.Layer {
		return layers.Destroy(list, id)
	})
}

// CopyLayer duplicates the layer with the given id and submits the result.
func (e *Editor) CopyLayer(ctx context.Context, id string) (Outcome, error) {
	return e.mutateLayers(ctx, id, func(list []style.Layer) []style.Layer {
		return layers.Copy(list, id)
	})
}

// ToggleLayerVisibility flips the layer's layout visibility and submits
// the result.
func (e *Editor) ToggleLayerVisibility(ctx context.Context, id string) (Outcome, error) {
	return e.mutateLayers(ctx, id, func(list []style.Layer) []style.Layer {
		return layers.ToggleVisibility(list, id)
	})
}

// RenameLayer changes the layer's id and submits the result.
func (e *Editor) RenameLayer(ctx context.Context, id, newID string) (Outcome, error) {
	return e.mutateLayers(ctx, id, func(list []style.Layer) []style.Layer {
		return layers.RenameID(list, id, newID)
	})
}

// ReplaceLayer swaps the layer with the given id for the provided one and
// submits the result.
func (e *Editor) ReplaceLayer(ctx context.Context, id string, layer style.Layer) (Outcome, error) {
	return e.mutateLayers(ctx, id, func(list []style.Layer) []style.Layer {
		return layers.Replace(list, id, layer)
	})
}

func (e *Editor) mutateLayers(ctx context.Context, id string, apply func([]style.Layer) []style.Layer) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.LayerIndex(id) < 0 {
		return Outcome{}, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	candidate := e.current.Copy()
	candidate.Layers = apply(candidate.Layers)
	return e.submitLocked(ctx, candidate), nil
}

// ExternalChange feeds a document observed outside the editor (a store
// watch event) through the pipeline. Documents equal to the committed one
// are ignored, which also swallows the echo of the editor's own saves.
func (e *Editor) ExternalChange(ctx context.Context, doc *style.Style) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if style.Equal(e.current, doc) {
		return Outcome{Accepted: true, Style: e.current.Copy()}
	}
	return e.submitLocked(ctx, doc)
}

// SetSelection clamps and stores the selected layer index, returning the
// clamped value.
func (e *Editor) SetSelection(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = clampSelection(index, len(e.current.Layers))
	return e.selection
}

func (e *Editor) Selection() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// Style returns a copy of the committed document.
func (e *Editor) Style() *style.Style {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Copy()
}

// State snapshots the whole editor for transport.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Style:     e.current.Copy(),
		Selection: e.selection,
		Errors:    append([]string{}, e.errs...),
		Infos:     append([]string{}, e.infos...),
		Sources:   copySources(e.sources),
	}
}

// Sources returns a copy of the source descriptor table.
func (e *Editor) Sources() map[string]style.SourceDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copySources(e.sources)
}

// Revisions lists the history entries with the active one marked.
func (e *Editor) Revisions() []RevisionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.hist.All()
	cursor := e.hist.Cursor()
	out := make([]RevisionInfo, len(all))
	for i, doc := range all {
		out[i] = RevisionInfo{Index: i, LayerCount: len(doc.Layers), Current: i == cursor}
	}
	return out
}

// reconcileLocked recomputes the descriptor table for doc and replaces it
// when it differs. Fetches started here complete through mergeDescriptor.
func (e *Editor) reconcileLocked(doc *style.Style) {
	if e.rec == nil {
		return
	}
	next := e.rec.Reconcile(context.Background(), doc, e.sources, e.mergeDescriptor)
	if !reflect.DeepEqual(next, e.sources) {
		e.sources = next
	}
}

// mergeDescriptor is the completion callback for background descriptor
// fetches. It re-acquires the mutex and merges into a fresh copy of the
// table, last writer wins per source. A fetch that resolves after its
// source was dropped still merges.
func (e *Editor) mergeDescriptor(name string, discovered []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := copySources(e.sources)
	entry := next[name]
	entry.Layers = discovered
	next[name] = entry
	if !reflect.DeepEqual(next, e.sources) {
		e.sources = next
	}
}

// triggerMetadata fires the asynchronous glyph and sprite downloaders for
// each template that changed between the two documents. The downloaders
// ignore empty templates themselves.
func (e *Editor) triggerMetadata(prev, next *style.Style) {
	if e.meta == nil {
		return
	}
	prevGlyphs, prevSprite := "", ""
	if prev != nil {
		prevGlyphs, prevSprite = prev.Glyphs, prev.Sprite
	}
	if next.Glyphs != prevGlyphs {
		go e.meta.UpdateGlyphs(context.Background(), next.Copy())
	}
	if next.Sprite != prevSprite {
		go e.meta.UpdateSprite(context.Background(), next.Copy())
	}
}

func copySources(in map[string]style.SourceDescriptor) map[string]style.SourceDescriptor {
	out := make(map[string]style.SourceDescriptor, len(in))
	for name, descriptor := range in {
		descriptor.Layers = append(make([]string, 0, len(descriptor.Layers)), descriptor.Layers...)
		out[name] = descriptor
	}
	return out
}

func clampSelection(index, count int) int {
	if count == 0 {
		return 0
	}
	if index < 0 {
		return 0
	}
	if index >= count {
		return count - 1
	}
	return index
}

package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/emuanalytics/editor/internal/archive"
	"github.com/emuanalytics/editor/internal/config"
	"github.com/emuanalytics/editor/internal/diff"
	"github.com/emuanalytics/editor/internal/dispatch"
	"github.com/emuanalytics/editor/internal/editor"
	"github.com/emuanalytics/editor/internal/publish"
	"github.com/emuanalytics/editor/internal/search"
	"github.com/emuanalytics/editor/internal/style"
)

type editorEngine interface {
	Bootstrap(ctx context.Context, initial *style.Style) error
	Submit(ctx context.Context, candidate *style.Style) editor.Outcome
	Undo(ctx context.Context) ([]diff.Change, *style.Style)
	Redo(ctx context.Context) ([]diff.Change, *style.Style)
	MoveLayer(ctx context.Context, oldIndex, newIndex int) editor.Outcome
	DestroyLayer(ctx context.Context, id string) (editor.Outcome, error)
	CopyLayer(ctx context.Context, id string) (editor.Outcome, error)
	ToggleLayerVisibility(ctx context.Context, id string) (editor.Outcome, error)
	RenameLayer(ctx context.Context, id, newID string) (editor.Outcome, error)
	ReplaceLayer(ctx context.Context, id string, layer style.Layer) (editor.Outcome, error)
	ExternalChange(ctx context.Context, doc *style.Style) editor.Outcome
	SetSelection(index int) int
	Selection() int
	Style() *style.Style
	State() editor.State
	Sources() map[string]style.SourceDescriptor
	Revisions() []editor.RevisionInfo
}

type keyDispatcher interface {
	Dispatch(event dispatch.KeyEvent) (dispatch.Action, bool)
}

type layerSearch interface {
	Search(q search.Query) search.Response
	IndexLayers(styleID string, doc *style.Style)
}

type styleArchive interface {
	Record(styleID string, doc *style.Style, author, message string) (archive.Version, error)
	History(styleID string, limit int) ([]archive.Version, error)
	Tag(styleID, hash, name string) error
}

type stylePublisher interface {
	Publish(ctx context.Context, styleID string, doc *style.Style) (string, error)
}

type Service struct {
	cfg       config.Config
	editor    editorEngine
	keys      keyDispatcher
	search    layerSearch
	archive   styleArchive
	publisher stylePublisher
	ping      func(context.Context) error
}

func New(cfg config.Config, engine *editor.Editor, keys *dispatch.Dispatcher, searchSvc *search.Service) *Service {
	s := &Service{
		cfg:    cfg,
		editor: engine,
	}
	if keys != nil {
		s.keys = keys
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	return s
}

// SetArchive wires the optional git archive.
func (s *Service) SetArchive(a *archive.Service) {
	if a != nil {
		s.archive = a
	}
}

// SetPublisher wires the optional object storage publisher.
func (s *Service) SetPublisher(p *publish.Service) {
	if p != nil {
		s.publisher = p
	}
}

// SetPing wires the readiness probe for the active persistence backend.
func (s *Service) SetPing(fn func(context.Context) error) {
	s.ping = fn
}

// Bootstrap seeds the editor, the search index, and the archive baseline.
// The returned error reports a degraded load; the service stays usable.
func (s *Service) Bootstrap(ctx context.Context, initial *style.Style) error {
	err := s.editor.Bootstrap(ctx, initial)
	doc := s.editor.Style()
	if s.search != nil {
		s.search.IndexLayers(s.cfg.StyleID, doc)
	}
	if s.archive != nil {
		if _, recordErr := s.archive.Record(s.cfg.StyleID, doc, "styled", "Load style"); recordErr != nil {
			log.Printf("app: archive record: %v", recordErr)
		}
	}
	return err
}

func (s *Service) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Service) GetState() map[string]any {
	state := s.editor.State()
	return map[string]any{
		"style":     state.Style,
		"selection": state.Selection,
		"errors":    state.Errors,
		"infos":     state.Infos,
		"sources":   state.Sources,
		"revisions": s.editor.Revisions(),
	}
}

func (s *Service) GetStyle() *style.Style {
	return s.editor.Style()
}

func (s *Service) SubmitStyle(ctx context.Context, raw []byte, author string) (map[string]any, error) {
	candidate, err := style.Parse(raw)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	}
	before := s.editor.Style()
	return s.commitOutcome(before, s.editor.Submit(ctx, candidate), author)
}

func (s *Service) UndoStyle(ctx context.Context, author string) map[string]any {
	changes, doc := s.editor.Undo(ctx)
	messages := diff.Messages(changes)
	if len(changes) > 0 {
		s.afterCommit(doc, author, messages)
	}
	return map[string]any{"style": doc, "messages": messages}
}

func (s *Service) RedoStyle(ctx context.Context, author string) map[string]any {
	changes, doc := s.editor.Redo(ctx)
	messages := diff.Messages(changes)
	if len(changes) > 0 {
		s.afterCommit(doc, author, messages)
	}
	return map[string]any{"style": doc, "messages": messages}
}

func (s *Service) GetRevisions() map[string]any {
	return map[string]any{"revisions": s.editor.Revisions()}
}

func (s *Service) SetSelection(index int) map[string]any {
	return map[string]any{"selection": s.editor.SetSelection(index)}
}

func (s *Service) GetSources() map[string]any {
	return map[string]any{"sources": s.editor.Sources()}
}

func (s *Service) MoveLayer(ctx context.Context, oldIndex, newIndex int, author string) (map[string]any, error) {
	before := s.editor.Style()
	return s.commitOutcome(before, s.editor.MoveLayer(ctx, oldIndex, newIndex), author)
}

func (s *Service) DestroyLayer(ctx context.Context, id, author string) (map[string]any, error) {
	before := s.editor.Style()
	out, err := s.editor.DestroyLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.commitOutcome(before, out, author)
}

func (s *Service) CopyLayer(ctx context.Context, id, author string) (map[string]any, error) {
	before := s.editor.Style()
	out, err := s.editor.CopyLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.commitOutcome(before, out, author)
}

func (s *Service) ToggleLayerVisibility(ctx context.Context, id, author string) (map[string]any, error) {
	before := s.editor.Style()
	out, err := s.editor.ToggleLayerVisibility(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.commitOutcome(before, out, author)
}

func (s *Service) RenameLayer(ctx context.Context, id, newID, author string) (map[string]any, error) {
	before := s.editor.Style()
	out, err := s.editor.RenameLayer(ctx, id, newID)
	if err != nil {
		return nil, err
	}
	return s.commitOutcome(before, out, author)
}

func (s *Service) ReplaceLayer(ctx context.Context, id string, layer style.Layer, author string) (map[string]any, error) {
	before := s.editor.Style()
	out, err := s.editor.ReplaceLayer(ctx, id, layer)
	if err != nil {
		return nil, err
	}
	return s.commitOutcome(before, out, author)
}

// DispatchKey resolves a key event. Undo and redo execute here; toggle
// actions are echoed back for the client to act on.
func (s *Service) DispatchKey(ctx context.Context, event dispatch.KeyEvent, author string) (map[string]any, error) {
	if s.keys == nil {
		return nil, domainError(http.StatusServiceUnavailable, "KEYS_UNAVAILABLE", "Key dispatch not configured", nil)
	}
	action, ok := s.keys.Dispatch(event)
	if !ok {
		return map[string]any{"handled": false}, nil
	}

	payload := map[string]any{"handled": true, "action": string(action)}
	switch action {
	case dispatch.ActionUndo:
		changes, doc := s.editor.Undo(ctx)
		messages := diff.Messages(changes)
		if len(changes) > 0 {
			s.afterCommit(doc, author, messages)
		}
		payload["style"] = doc
		payload["messages"] = messages
	case dispatch.ActionRedo:
		changes, doc := s.editor.Redo(ctx)
		messages := diff.Messages(changes)
		if len(changes) > 0 {
			s.afterCommit(doc, author, messages)
		}
		payload["style"] = doc
		payload["messages"] = messages
	}
	return payload, nil
}

func (s *Service) SearchLayers(q string, limit int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Layer search not configured", nil)
	}
	resp := s.search.Search(search.Query{Text: q, Limit: limit})
	return map[string]any{"results": resp.Results, "total": resp.Total, "query": resp.Query}, nil
}

func (s *Service) ArchiveHistory(limit int) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Style archive not configured", nil)
	}
	versions, err := s.archive.History(s.cfg.StyleID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive history: %w", err)
	}
	return map[string]any{"versions": versions}, nil
}

func (s *Service) TagVersion(hash, name string) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Style archive not configured", nil)
	}
	if strings.TrimSpace(name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := s.archive.Tag(s.cfg.StyleID, hash, name); err != nil {
		return nil, fmt.Errorf("tag version: %w", err)
	}
	return map[string]any{"ok": true, "name": name}, nil
}

func (s *Service) PublishStyle(ctx context.Context) (map[string]any, error) {
	if s.publisher == nil {
		return nil, domainError(http.StatusServiceUnavailable, "PUBLISH_UNAVAILABLE", "Publishing not configured", nil)
	}
	location, err := s.publisher.Publish(ctx, s.cfg.StyleID, s.editor.Style())
	if err != nil {
		return nil, fmt.Errorf("publish style: %w", err)
	}
	return map[string]any{"ok": true, "location": location}, nil
}

// HandleExternalChange runs a document seen by a store watcher through the
// pipeline. Echoes of the editor's own saves compare equal and do nothing.
func (s *Service) HandleExternalChange(ctx context.Context, doc *style.Style) {
	before := s.editor.Style()
	out := s.editor.ExternalChange(ctx, doc)
	if !out.Accepted {
		log.Printf("app: external change rejected: %v", out.Errors)
		return
	}
	if style.Equal(before, out.Style) {
		return
	}
	s.afterCommit(out.Style, "external", diff.Messages(diff.Changes(before, out.Style)))
}

func (s *Service) commitOutcome(before *style.Style, out editor.Outcome, author string) (map[string]any, error) {
	if !out.Accepted {
		return nil, validationError(out.Errors)
	}
	s.afterCommit(out.Style, author, diff.Messages(diff.Changes(before, out.Style)))
	return map[string]any{
		"style":     out.Style,
		"selection": s.editor.Selection(),
	}, nil
}

// afterCommit refreshes the search index and archives the new head. Both
// are best-effort side effects of an accepted commit.
func (s *Service) afterCommit(doc *style.Style, author string, messages []string) {
	if s.search != nil {
		s.search.IndexLayers(s.cfg.StyleID, doc)
	}
	if s.archive == nil {
		return
	}
	message := "Update style"
	if len(messages) > 0 {
		message = messages[0]
	}
	if _, err := s.archive.Record(s.cfg.StyleID, doc, author, message); err != nil {
		log.Printf("app: archive record: %v", err)
	}
}

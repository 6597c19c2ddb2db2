package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emuanalytics/editor/internal/archive"
	"github.com/emuanalytics/editor/internal/config"
	"github.com/emuanalytics/editor/internal/dispatch"
	"github.com/emuanalytics/editor/internal/editor"
	"github.com/emuanalytics/editor/internal/search"
	"github.com/emuanalytics/editor/internal/store"
	"github.com/emuanalytics/editor/internal/style"
	"github.com/emuanalytics/editor/internal/stylespec"
)

type memStore struct {
	mu  sync.Mutex
	doc *style.Style
}

func (m *memStore) Load(ctx context.Context) (*style.Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, store.ErrNotFound
	}
	return m.doc.Copy(), nil
}

func (m *memStore) Save(ctx context.Context, doc *style.Style) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc.Copy()
	return nil
}

type fakeArchive struct {
	mu       sync.Mutex
	messages []string
	authors  []string
	versions []archive.Version
	tags     []string
}

func (f *fakeArchive) Record(styleID string, doc *style.Style, author, message string) (archive.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	f.authors = append(f.authors, author)
	version := archive.Version{Hash: fmt.Sprintf("%07d", len(f.messages)), Message: message, Author: author, CreatedAt: time.Now()}
	f.versions = append([]archive.Version{version}, f.versions...)
	return version, nil
}

func (f *fakeArchive) History(styleID string, limit int) ([]archive.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && limit < len(f.versions) {
		return f.versions[:limit], nil
	}
	return f.versions, nil
}

func (f *fakeArchive) Tag(styleID, hash, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, name)
	return nil
}

func (f *fakeArchive) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	spec, err := stylespec.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	engine := editor.New(spec, &memStore{}, nil, nil)
	svc := New(config.Config{StyleID: "default"}, engine, dispatch.New("linux"), search.NewService(nil, search.NewMemory()))
	if err := svc.Bootstrap(context.Background(), nil); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return svc
}

func newTestServer(t *testing.T) (*HTTPServer, *Service) {
	t.Helper()
	svc := newTestService(t)
	return NewHTTPServer(svc, "*"), svc
}

func styleBody(t *testing.T, ids ...string) *bytes.Reader {
	t.Helper()
	doc := style.Empty()
	for _, id := range ids {
		doc.Layers = append(doc.Layers, style.Layer{ID: id, Type: "background"})
	}
	raw, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return bytes.NewReader(raw)
}

func doRequest(t *testing.T, server *HTTPServer, method, path string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

func TestPutStyleAcceptsValidDocument(t *testing.T) {
	server, svc := newTestServer(t)

	rr := doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "background"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["style"] == nil {
		t.Errorf("expected style in response, got %v", response)
	}

	if got := len(svc.GetStyle().Layers); got != 1 {
		t.Errorf("expected 1 committed layer, got %d", got)
	}
}

func TestPutStyleRejectsInvalidDocument(t *testing.T) {
	server, svc := newTestServer(t)

	doc := style.Empty()
	doc.Layers = append(doc.Layers, style.Layer{ID: "bad", Type: "bogus"})
	raw, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	rr := doRequest(t, server, http.MethodPut, "/api/style", bytes.NewReader(raw))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected code VALIDATION_ERROR, got %v", response["code"])
	}
	details, ok := response["details"].([]any)
	if !ok || len(details) == 0 {
		t.Errorf("expected validation messages in details, got %v", response["details"])
	}

	if got := len(svc.GetStyle().Layers); got != 0 {
		t.Errorf("expected committed document unchanged, got %d layers", got)
	}
}

func TestPutStyleRejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodPut, "/api/style", bytes.NewReader([]byte("{not json")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "INVALID_BODY" {
		t.Errorf("expected code INVALID_BODY, got %v", response["code"])
	}
}

func TestUndoRedoEndpoints(t *testing.T) {
	server, svc := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "first"))
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "first", "second"))

	rr := doRequest(t, server, http.MethodPost, "/api/style/undo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	messages, ok := response["messages"].([]any)
	if !ok || len(messages) == 0 {
		t.Errorf("expected undo messages, got %v", response["messages"])
	}
	if got := len(svc.GetStyle().Layers); got != 1 {
		t.Errorf("expected 1 layer after undo, got %d", got)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/style/redo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := len(svc.GetStyle().Layers); got != 2 {
		t.Errorf("expected 2 layers after redo, got %d", got)
	}
}

func TestStateEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "water"))

	rr := doRequest(t, server, http.MethodGet, "/api/state", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	for _, key := range []string{"style", "selection", "errors", "infos", "sources", "revisions"} {
		if _, exists := response[key]; !exists {
			t.Errorf("expected %s in state payload, got %v", key, response)
		}
	}
}

func TestSelectionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a", "b"))

	rr := doRequest(t, server, http.MethodPut, "/api/selection", bytes.NewReader([]byte(`{"index": 9}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if got := response["selection"]; got != float64(1) {
		t.Errorf("expected selection clamped to 1, got %v", got)
	}
}

func TestLayerMutationRoutes(t *testing.T) {
	server, svc := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a", "b"))

	rr := doRequest(t, server, http.MethodPost, "/api/layers/move", bytes.NewReader([]byte(`{"oldIndex": 0, "newIndex": 1}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("move: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := svc.GetStyle().Layers[0].ID; got != "b" {
		t.Errorf("expected layer b first after move, got %q", got)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/layers/a/copy", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("copy: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := len(svc.GetStyle().Layers); got != 3 {
		t.Errorf("expected 3 layers after copy, got %d", got)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/layers/a-copy/rename", bytes.NewReader([]byte(`{"newId": "duplicate"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("rename: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.GetStyle().LayerIndex("duplicate") < 0 {
		t.Errorf("expected renamed layer present, got %v", svc.GetStyle().Layers)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/layers/duplicate/visibility", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("visibility: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	index := svc.GetStyle().LayerIndex("duplicate")
	if got := svc.GetStyle().Layers[index].Visibility(); got != style.VisibilityNone {
		t.Errorf("expected visibility none, got %q", got)
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/layers/duplicate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := len(svc.GetStyle().Layers); got != 2 {
		t.Errorf("expected 2 layers after delete, got %d", got)
	}
}

func TestLayerReplaceRoute(t *testing.T) {
	server, svc := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a"))

	body := []byte(`{"id": "a", "type": "background", "paint": {"background-color": "#101010"}}`)
	rr := doRequest(t, server, http.MethodPut, "/api/layers/a", bytes.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := svc.GetStyle().Layers[0].Paint["background-color"]; got != "#101010" {
		t.Errorf("expected replacement applied, got %v", got)
	}

	invalid := []byte(`{"id": "a", "type": "bogus"}`)
	rr = doRequest(t, server, http.MethodPut, "/api/layers/a", bytes.NewReader(invalid))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestLayerRoutesUnknownLayer(t *testing.T) {
	server, _ := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a"))

	rr := doRequest(t, server, http.MethodDelete, "/api/layers/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "NOT_FOUND" {
		t.Errorf("expected code NOT_FOUND, got %v", response["code"])
	}

	rr = doRequest(t, server, http.MethodPost, "/api/layers/a/rename", bytes.NewReader([]byte(`{}`)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for missing newId, got %d", rr.Code)
	}
}

func TestKeysEndpointExecutesUndo(t *testing.T) {
	server, svc := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a"))
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a", "b"))

	rr := doRequest(t, server, http.MethodPost, "/api/keys", bytes.NewReader([]byte(`{"key": "z", "ctrlKey": true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["handled"] != true || response["action"] != "undo" {
		t.Errorf("expected handled undo, got %v", response)
	}
	if got := len(svc.GetStyle().Layers); got != 1 {
		t.Errorf("expected undo applied server-side, got %d layers", got)
	}
}

func TestKeysEndpointEchoesToggles(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodPost, "/api/keys", bytes.NewReader([]byte(`{"key": "o"}`)))
	response := decodeResponse(t, rr)
	if response["handled"] != true || response["action"] != "toggle-open" {
		t.Errorf("expected toggle-open echoed, got %v", response)
	}
	if _, exists := response["style"]; exists {
		t.Errorf("toggle actions must not carry a style payload, got %v", response)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/keys", bytes.NewReader([]byte(`{"key": "o", "inputFocused": true}`)))
	response = decodeResponse(t, rr)
	if response["handled"] != false {
		t.Errorf("expected bare key ignored while input focused, got %v", response)
	}
}

func TestSearchEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "water", "roads"))

	rr := doRequest(t, server, http.MethodGet, "/api/layers/search?q=water", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	results, ok := response["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", response["results"])
	}
	if response["total"] != float64(1) {
		t.Errorf("expected total 1, got %v", response["total"])
	}

	rr = doRequest(t, server, http.MethodGet, "/api/layers/search?q=water&limit=abc", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for bad limit, got %d", rr.Code)
	}
}

func TestArchiveEndpointsUnavailableWithoutArchive(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/archive/history", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "ARCHIVE_UNAVAILABLE" {
		t.Errorf("expected code ARCHIVE_UNAVAILABLE, got %v", response["code"])
	}
}

func TestArchiveRecordsAcceptedCommits(t *testing.T) {
	server, svc := newTestServer(t)
	fa := &fakeArchive{}
	svc.archive = fa

	rr := doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := fa.lastMessage(); !strings.Contains(got, `added layer "a"`) {
		t.Errorf("expected commit message naming the added layer, got %q", got)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/archive/history?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	versions, ok := response["versions"].([]any)
	if !ok || len(versions) == 0 {
		t.Fatalf("expected versions, got %v", response["versions"])
	}

	rr = doRequest(t, server, http.MethodPost, "/api/archive/tags", bytes.NewReader([]byte(`{"name": "v1"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodPost, "/api/archive/tags", bytes.NewReader([]byte(`{"hash": "abc"}`)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for missing name, got %d", rr.Code)
	}
}

func TestArchiveHistoryAcceptsNegativeLimit(t *testing.T) {
	server, svc := newTestServer(t)
	svc.SetArchive(archive.New(t.TempDir()))

	rr := doRequest(t, server, http.MethodPut, "/api/style", styleBody(t, "a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/archive/history?limit=-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	versions, ok := response["versions"].([]any)
	if !ok || len(versions) == 0 {
		t.Fatalf("expected versions, got %v", response["versions"])
	}
}

func TestPublishEndpointUnavailableWithoutPublisher(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodPost, "/api/publish", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "PUBLISH_UNAVAILABLE" {
		t.Errorf("expected code PUBLISH_UNAVAILABLE, got %v", response["code"])
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

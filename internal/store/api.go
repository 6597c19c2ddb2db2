package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emuanalytics/editor/internal/style"
)

// APIStore loads and saves the style document through a remote style
// API, for running the editor against a shared backend.
type APIStore struct {
	baseURL string
	styleID string
	token   string
	client  *http.Client
}

// NewAPIStore probes the remote health endpoint so a dead backend is
// discovered at startup rather than on the first save.
func NewAPIStore(baseURL, styleID, token string) (*APIStore, error) {
	s := &APIStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		styleID: styleID,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach style api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("style api health: status %d", resp.StatusCode)
	}
	return s, nil
}

func (s *APIStore) styleURL() string {
	return s.baseURL + "/api/styles/" + s.styleID
}

func (s *APIStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *APIStore) Load(ctx context.Context) (*style.Style, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.styleURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build load request: %w", err)
	}
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load style: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load style: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read style response: %w", err)
	}
	return style.Parse(raw)
}

func (s *APIStore) Save(ctx context.Context, doc *style.Style) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.styleURL(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("save style: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("save style: status %d", resp.StatusCode)
	}
	return nil
}

// Watch subscribes to the backend's websocket feed and reports every
// style revision pushed by other editors.
func (s *APIStore) Watch(ctx context.Context, onChange func(*style.Style)) error {
	wsURL := s.styleURL() + "/watch"
	if strings.HasPrefix(wsURL, "https://") {
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	} else {
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial style watch: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// ReadMessage has no context support, so cancel by closing the
	// connection out from under it.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read style watch: %w", err)
		}
		doc, err := style.Parse(raw)
		if err != nil {
			log.Printf("store: decode watched style: %v", err)
			continue
		}
		onChange(doc)
	}
}

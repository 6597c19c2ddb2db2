package store

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/emuanalytics/editor/internal/style"
)

// Fetch downloads a style document from a URL. Used to seed an empty
// store from a published style at startup.
func Fetch(ctx context.Context, client *http.Client, url string) (*style.Style, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build style request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch style %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch style %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read style %s: %w", url, err)
	}
	return style.Parse(raw)
}

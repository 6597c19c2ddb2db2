// Package metadata resolves the glyph font stacks and sprite names
// available to the current document and merges them into the style
// specification reference's value tables.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/emuanalytics/editor/internal/style"
	"github.com/emuanalytics/editor/internal/stylespec"
)

// accessTokenKey is the document metadata property that overrides the
// configured default token for {key} substitution.
const accessTokenKey = "styled:access_token"

type specTable interface {
	SetRootValues(field string, values []string)
}

// Client fetches glyph and sprite metadata for a document. Failures are
// logged and skipped; the value tables keep their previous contents.
type Client struct {
	client       *http.Client
	table        specTable
	defaultToken string
}

func New(client *http.Client, table *stylespec.Spec, defaultToken string) *Client {
	return &Client{client: client, table: table, defaultToken: defaultToken}
}

// UpdateGlyphs derives the font listing endpoint from the document's glyph
// URL template and merges the advertised font stack names. The template is
// cut at its {fontstack} token and fontstacks.json is requested from the
// prefix, keeping any query string.
func (c *Client) UpdateGlyphs(ctx context.Context, doc *style.Style) {
	if doc == nil || doc.Glyphs == "" {
		return
	}

	template := strings.ReplaceAll(doc.Glyphs, "{key}", c.tokenFor(doc))
	base, query, ok := cutAtFontstack(template)
	if !ok {
		log.Printf("metadata: glyphs template has no fontstack token: %s", doc.Glyphs)
		return
	}

	var names []string
	if err := c.getJSON(ctx, base+"/fontstacks.json"+query, &names); err != nil {
		log.Printf("metadata: fetch fontstacks: %v", err)
		return
	}

	c.table.SetRootValues("glyphs", names)
}

// UpdateSprite requests the sprite index next to the document's sprite base
// URL and merges the sorted sprite names it lists.
func (c *Client) UpdateSprite(ctx context.Context, doc *style.Style) {
	if doc == nil || doc.Sprite == "" {
		return
	}

	base := strings.ReplaceAll(doc.Sprite, "{key}", c.tokenFor(doc))
	url := base + ".json"
	if queryStart := strings.Index(base, "?"); queryStart >= 0 {
		url = base[:queryStart] + ".json" + base[queryStart:]
	}

	var index map[string]any
	if err := c.getJSON(ctx, url, &index); err != nil {
		log.Printf("metadata: fetch sprite index: %v", err)
		return
	}

	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	c.table.SetRootValues("sprite", names)
}

func (c *Client) tokenFor(doc *style.Style) string {
	if doc.Metadata != nil {
		if token, ok := doc.Metadata[accessTokenKey].(string); ok && token != "" {
			return token
		}
	}
	return c.defaultToken
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// cutAtFontstack splits a glyph URL template before its {fontstack} token,
// returning the base and any query string. Templates that went through URL
// encoding carry the token as %7Bfontstack%7D.
func cutAtFontstack(template string) (base, query string, ok bool) {
	cut := strings.Index(template, "/{fontstack}")
	if cut < 0 {
		cut = strings.Index(template, "/%7Bfontstack%7D")
	}
	if cut < 0 {
		return "", "", false
	}
	if queryStart := strings.Index(template, "?"); queryStart >= 0 {
		query = template[queryStart:]
	}
	return template[:cut], query, true
}

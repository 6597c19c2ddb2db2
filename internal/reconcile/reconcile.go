// Package reconcile keeps the editor's source descriptor table aligned with
// the sources a style document declares. New sources get a placeholder
// entry synchronously; vector sources with a fetchable TileJSON URL get
// their layer names resolved in the background and merged in later.
package reconcile

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/emuanalytics/editor/internal/cache"
	"github.com/emuanalytics/editor/internal/style"
)

// MergeFunc receives discovered layer names for a source. Callbacks arrive
// on background goroutines; implementations must do their own locking.
type MergeFunc func(name string, layers []string)

type descriptorCache interface {
	Descriptor(ctx context.Context, url string) ([]string, bool, error)
	StoreDescriptor(ctx context.Context, url string, layers []string) error
}

type Reconciler struct {
	client *http.Client
	cache  descriptorCache
}

// New creates a reconciler. The cache store may be nil, in which case every
// descriptor lookup goes to the network.
func New(client *http.Client, store *cache.Store) *Reconciler {
	r := &Reconciler{client: client}
	if store != nil {
		r.cache = store
	}
	return r
}

// Reconcile returns the next descriptor table for the document: every entry
// of known is kept as-is, and every source the document declares that known
// lacks gets a placeholder with no layers. Placeholder creation is
// synchronous; descriptor fetches run in the background and report through
// merge. A source is fetched when it is new to the table, so two
// overlapping calls may fetch the same descriptor twice. Merges are
// idempotent, so delivery is at least once rather than exactly once.
func (r *Reconciler) Reconcile(ctx context.Context, doc *style.Style, known map[string]style.SourceDescriptor, merge MergeFunc) map[string]style.SourceDescriptor {
	next := make(map[string]style.SourceDescriptor, len(known))
	for name, descriptor := range known {
		next[name] = descriptor
	}
	if doc == nil {
		return next
	}

	for name, source := range doc.Sources {
		if _, ok := next[name]; ok {
			continue
		}
		next[name] = style.SourceDescriptor{Type: source.Type, Layers: []string{}}
		if source.Type == style.SourceTypeVector && isFetchable(source.URL) {
			go r.fetch(ctx, name, source.URL, merge)
		}
	}
	return next
}

func (r *Reconciler) fetch(ctx context.Context, name, url string, merge MergeFunc) {
	if r.cache != nil {
		layers, hit, err := r.cache.Descriptor(ctx, url)
		if err != nil {
			log.Printf("reconcile: descriptor cache lookup %s: %v", url, err)
		} else if hit {
			merge(name, layers)
			return
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("reconcile: build descriptor request %s: %v", url, err)
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("reconcile: fetch descriptor %s: %v", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("reconcile: fetch descriptor %s: status %d", url, resp.StatusCode)
		return
	}

	var descriptor struct {
		VectorLayers []struct {
			ID string `json:"id"`
		} `json:"vector_layers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		log.Printf("reconcile: decode descriptor %s: %v", url, err)
		return
	}
	if descriptor.VectorLayers == nil {
		// TileJSON without vector_layers carries nothing to merge.
		return
	}

	layerIDs := make([]string, 0, len(descriptor.VectorLayers))
	for _, layer := range descriptor.VectorLayers {
		layerIDs = append(layerIDs, layer.ID)
	}

	if r.cache != nil {
		if err := r.cache.StoreDescriptor(ctx, url, layerIDs); err != nil {
			log.Printf("reconcile: cache descriptor %s: %v", url, err)
		}
	}
	merge(name, layerIDs)
}

func isFetchable(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

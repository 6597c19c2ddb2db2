package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/emuanalytics/editor/internal/style"
)

// FileStore keeps the style document as a single JSON file, which keeps
// the document editable with outside tools. Watch picks those outside
// edits up.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	// fsnotify events carry cleaned paths; keep ours comparable.
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create style directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(ctx context.Context) (*style.Style, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read style file: %w", err)
	}
	return style.Parse(raw)
}

// Save writes through a temp file and renames it into place so watchers
// never observe a half-written document.
func (s *FileStore) Save(ctx context.Context, doc *style.Style) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write style file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace style file: %w", err)
	}
	return nil
}

// Watch reports external edits to the style file until ctx is cancelled.
// The parent directory is watched because editors and atomic writers
// replace the file rather than write it in place.
func (s *FileStore) Watch(ctx context.Context, onChange func(*style.Style)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch style directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			doc, err := s.Load(ctx)
			if err != nil {
				log.Printf("store: reload style file: %v", err)
				continue
			}
			onChange(doc)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("store: watch style file: %v", err)
		}
	}
}

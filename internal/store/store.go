// Package store persists the working style document. Several backends
// implement the same contract so the daemon can run against an embedded
// database, a plain file, Postgres, or a remote style API.
package store

import (
	"context"
	"errors"

	"github.com/emuanalytics/editor/internal/style"
)

// ErrNotFound reports that no style document has been persisted yet.
var ErrNotFound = errors.New("style document not found")

type Store interface {
	Load(ctx context.Context) (*style.Style, error)
	Save(ctx context.Context, doc *style.Style) error
}

// Watcher is implemented by backends that can observe edits made to the
// persisted document outside this process. Watch blocks until ctx is
// cancelled, invoking onChange for every external revision it sees.
type Watcher interface {
	Watch(ctx context.Context, onChange func(*style.Style)) error
}

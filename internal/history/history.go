// Package history keeps the in-memory revision list that backs undo/redo.
package history

import (
	"github.com/emuanalytics/editor/internal/style"
)

// Store holds revisions in order with a cursor at the active one. It is not
// safe for concurrent use; the editor serializes access to it.
type Store struct {
	revisions []*style.Style
	cursor    int
}

func New() *Store {
	return &Store{cursor: -1}
}

// Add records a new revision after the cursor and makes it active. Any
// revisions ahead of the cursor are discarded, so redo after an edit is
// not possible.
func (s *Store) Add(doc *style.Style) {
	s.revisions = append(s.revisions[:s.cursor+1], doc.Copy())
	s.cursor = len(s.revisions) - 1
}

// Undo steps the cursor back and returns a copy of that revision. It
// reports false when already at the oldest revision.
func (s *Store) Undo() (*style.Style, bool) {
	if s.cursor <= 0 {
		return nil, false
	}
	s.cursor--
	return s.revisions[s.cursor].Copy(), true
}

// Redo steps the cursor forward and returns a copy of that revision. It
// reports false when already at the newest revision.
func (s *Store) Redo() (*style.Style, bool) {
	if s.cursor >= len(s.revisions)-1 {
		return nil, false
	}
	s.cursor++
	return s.revisions[s.cursor].Copy(), true
}

// Current returns a copy of the active revision, or nil when empty.
func (s *Store) Current() *style.Style {
	if s.cursor < 0 || s.cursor >= len(s.revisions) {
		return nil
	}
	return s.revisions[s.cursor].Copy()
}

func (s *Store) Len() int {
	return len(s.revisions)
}

// Cursor returns the index of the active revision, -1 when empty.
func (s *Store) Cursor() int {
	return s.cursor
}

// All returns the revision list. Entries are shared with the store and
// must be treated as read-only.
func (s *Store) All() []*style.Style {
	out := make([]*style.Style, len(s.revisions))
	copy(out, s.revisions)
	return out
}

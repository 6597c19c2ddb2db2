package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/emuanalytics/editor/internal/style"
)

// BadgerStore keeps the style document in an embedded Badger database.
// It is the default backend and needs no external services.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

func OpenBadger(dir, styleID string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, key: styleKey(styleID)}, nil
}

// OpenBadgerInMemory backs the store with a throwaway in-memory database.
func OpenBadgerInMemory(styleID string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, key: styleKey(styleID)}, nil
}

func styleKey(styleID string) []byte {
	return []byte("style:" + styleID)
}

func (s *BadgerStore) Load(ctx context.Context) (*style.Style, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load style: %w", err)
	}
	return style.Parse(raw)
}

func (s *BadgerStore) Save(ctx context.Context, doc *style.Style) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, raw)
	}); err != nil {
		return fmt.Errorf("save style: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/emuanalytics/editor/internal/style"
)

func testDoc(name string) *style.Style {
	doc := style.Empty()
	doc.Name = name
	return doc
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s, err := OpenBadgerInMemory("default")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	if err := s.Save(ctx, testDoc("first")); err != nil {
		t.Fatalf("save style: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load style: %v", err)
	}
	if loaded.Name != "first" {
		t.Errorf("loaded name = %q, want first", loaded.Name)
	}

	if err := s.Save(ctx, testDoc("second")); err != nil {
		t.Fatalf("overwrite style: %v", err)
	}
	loaded, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("reload style: %v", err)
	}
	if loaded.Name != "second" {
		t.Errorf("reloaded name = %q, want second", loaded.Name)
	}
}

func TestBadgerStoreIsolatesStyleIDs(t *testing.T) {
	s, err := OpenBadgerInMemory("first-style")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer s.Close()

	other := &BadgerStore{db: s.db, key: styleKey("second-style")}

	ctx := context.Background()
	if err := s.Save(ctx, testDoc("mine")); err != nil {
		t.Fatalf("save style: %v", err)
	}
	if _, err := other.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the other style id, got %v", err)
	}
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadger(dir, "default")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	if err := s.Save(context.Background(), testDoc("durable")); err != nil {
		t.Fatalf("save style: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close badger: %v", err)
	}

	reopened, err := OpenBadger(dir, "default")
	if err != nil {
		t.Fatalf("reopen badger: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if loaded.Name != "durable" {
		t.Errorf("loaded name = %q, want durable", loaded.Name)
	}
}

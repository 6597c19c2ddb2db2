package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emuanalytics/editor/internal/app"
	"github.com/emuanalytics/editor/internal/archive"
	"github.com/emuanalytics/editor/internal/cache"
	"github.com/emuanalytics/editor/internal/config"
	"github.com/emuanalytics/editor/internal/dispatch"
	"github.com/emuanalytics/editor/internal/editor"
	"github.com/emuanalytics/editor/internal/metadata"
	"github.com/emuanalytics/editor/internal/publish"
	"github.com/emuanalytics/editor/internal/reconcile"
	"github.com/emuanalytics/editor/internal/search"
	"github.com/emuanalytics/editor/internal/store"
	"github.com/emuanalytics/editor/internal/style"
	"github.com/emuanalytics/editor/internal/stylespec"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	styleStore, ping, closeStore := openStore(ctx, cfg)
	defer closeStore()

	spec, err := stylespec.Latest()
	if err != nil {
		log.Fatalf("load style specification: %v", err)
	}

	var descriptorCache *cache.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		descriptorCache, err = cache.New(cfg.RedisURL, cfg.DescriptorTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer descriptorCache.Close()
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	reconciler := reconcile.New(httpClient, descriptorCache)
	meta := metadata.New(httpClient, spec, cfg.AccessToken)

	engine := editor.New(spec, styleStore, reconciler, meta)
	keys := dispatch.New(cfg.Platform)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory())

	service := app.New(cfg, engine, keys, searchService)
	if ping != nil {
		service.SetPing(ping)
	}

	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		service.SetArchive(archive.New(cfg.ArchiveDir))
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		publisher, err := publish.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		service.SetPublisher(publisher)
	}

	var initial *style.Style
	if strings.TrimSpace(cfg.StyleURL) != "" {
		initial, err = store.Fetch(ctx, httpClient, cfg.StyleURL)
		if err != nil {
			log.Printf("WARNING: fetch style from %s: %v", cfg.StyleURL, err)
		}
	}
	if err := service.Bootstrap(ctx, initial); err != nil {
		log.Printf("WARNING: bootstrap error (editing starts from an empty style): %v", err)
	}

	if watcher, ok := styleStore.(store.Watcher); ok {
		go func() {
			if err := watcher.Watch(ctx, func(doc *style.Style) {
				service.HandleExternalChange(context.Background(), doc)
			}); err != nil && ctx.Err() == nil {
				log.Printf("store watch stopped: %v", err)
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("styled listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openStore selects the persistence backend and returns it with an
// optional readiness probe and a close function. A configured style URL
// forces the local store so remote documents are edited locally. An
// unreachable api backend falls back to the local store so the editor
// always starts.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(context.Context) error, func()) {
	if strings.TrimSpace(cfg.StyleURL) != "" {
		log.Printf("style url configured, saving edits to the local store")
		return openBadger(cfg)
	}

	switch cfg.StoreBackend {
	case "file":
		fileStore, err := store.NewFileStore(cfg.StylePath)
		if err != nil {
			log.Fatalf("open style file store: %v", err)
		}
		return fileStore, nil, func() {}
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		pgStore := store.NewPostgresStore(db, cfg.StyleID)
		return pgStore, pgStore.Ping, func() { _ = db.Close() }
	case "api":
		apiStore, err := store.NewAPIStore(cfg.APIBaseURL, cfg.StyleID, cfg.APIToken)
		if err == nil {
			return apiStore, nil, func() {}
		}
		log.Printf("WARNING: style api unavailable, falling back to the local store: %v", err)
	}
	return openBadger(cfg)
}

func openBadger(cfg config.Config) (store.Store, func(context.Context) error, func()) {
	badgerStore, err := store.OpenBadger(cfg.DataDir, cfg.StyleID)
	if err != nil {
		log.Fatalf("open badger store: %v", err)
	}
	return badgerStore, nil, func() { _ = badgerStore.Close() }
}

// Package main is the demo page server: it wires the template pipeline
// to a PostgreSQL template repository, optional Valkey caching and
// session storage, and optional S3 media storage, then serves rendered
// pages over HTTP with graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geekscore/internal/components"
	"geekscore/internal/config"
	"geekscore/internal/database"
	"geekscore/internal/handlers"
	"geekscore/internal/imaging"
	"geekscore/internal/pages"
	"geekscore/internal/rendercache"
	"geekscore/internal/replacements"
	"geekscore/internal/router"
	"geekscore/internal/session"
	"geekscore/internal/storage"
	"geekscore/internal/store"
	"geekscore/internal/templates"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"environment", cfg.Environment.String(),
		"branch", cfg.Branch,
		"addr", cfg.Addr(),
	)

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Valkey is optional: without it sessions resolve anonymous and the
	// in-memory output cache location falls back to disk.
	valkeyClient, err := rendercache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Warn("valkey unavailable, continuing without it", "error", err)
		valkeyClient = nil
	}
	if valkeyClient != nil {
		defer valkeyClient.Close()
	}

	sessionStore := session.NewStore(valkeyClient)

	var storageClient *storage.Client
	storageClient, err = storage.New(
		cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
		cfg.S3Bucket, cfg.S3PublicURL,
	)
	if err != nil {
		slog.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	if storageClient == nil {
		slog.Warn("object storage not configured, image urls stay relative")
	}

	templateStore := store.NewTemplateStore(db, cfg.Environment)
	dynamicStore := store.NewDynamicContentStore(db, cfg.Environment)
	itemFileStore := store.NewItemFileStore(db)
	renderLogStore := store.NewRenderLogStore(db)
	settingStore := store.NewSettingStore(db)

	imageBaseURL := ""
	if storageClient != nil {
		imageBaseURL = storageClient.BaseURL()
	}
	imagingEngine := imaging.New(itemFileStore, imaging.DefaultURLTemplate, imageBaseURL)

	registry := components.NewRegistry()
	registry.Register("text", components.Text())

	templateService := templates.NewService(templates.Deps{
		DB:          db,
		Templates:   templateStore,
		Dynamic:     dynamicStore,
		RenderLog:   renderLogStore,
		Settings:    settingStore,
		Replacer:    replacements.NewDefaultReplacer(),
		Imaging:     imagingEngine,
		Registry:    registry,
		Environment: cfg.Environment,
		Branch:      cfg.Branch,
	})
	cachedService := templates.NewCachedService(templateService, cfg.ObjectCacheTTL)

	pageService := pages.New(cachedService, templateStore)

	diskBackend, err := rendercache.NewDiskBackend(cfg.CacheDir)
	if err != nil {
		slog.Error("failed to initialize disk cache", "error", err)
		os.Exit(1)
	}
	diskCache := rendercache.New(diskBackend)

	var memCache *rendercache.Cache
	if valkeyClient != nil {
		memCache = rendercache.New(rendercache.NewValkeyBackend(valkeyClient))
	}

	pageHandlers := handlers.NewPages(cfg, cachedService, pageService, sessionStore, memCache, diskCache, storageClient)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.New(pageHandlers),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

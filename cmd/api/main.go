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

	"fieldbook/api/internal/app"
	"fieldbook/api/internal/config"
	"fieldbook/api/internal/draft"
	"fieldbook/api/internal/screening"
	"fieldbook/api/internal/search"
	"fieldbook/api/internal/store"
	"fieldbook/api/internal/uploads"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	cache, err := draft.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer cache.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	// Object storage is optional in development; file answers return 503
	// until it comes up.
	var uploadService *uploads.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploadService, err = uploads.New(ctx, uploads.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Printf("WARNING: object storage unavailable, file uploads disabled: %v", err)
			uploadService = nil
		}
	}

	var screeningService *screening.Service
	if strings.TrimSpace(cfg.ScreeningURL) != "" {
		screeningService = screening.New(cfg.ScreeningURL, cfg.ScreeningAPIKey, cfg.ScreeningMode, time.Duration(cfg.ScreeningTimeout)*time.Second)
	}

	// A typed nil would defeat the service's uploader check, so branch here.
	var service *app.Service
	if uploadService != nil {
		service = app.New(cfg, dataStore, cache, screeningService, uploadService, searchService)
	} else {
		service = app.New(cfg, dataStore, cache, screeningService, nil, searchService)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Fieldbook API listening on %s", cfg.Addr)
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

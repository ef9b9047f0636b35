package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/api"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/config"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/engine"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/feed"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/httputil"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/logging"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/scheduler"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/workers"
	"github.com/gin-gonic/gin"
)

var (
	syncNow   = flag.Bool("sync", false, "Run one sync and exit")
	searchNow = flag.Bool("search", false, "Run saved searches once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.Log.Path, cfg.Log.MaxSizeMB, cfg.Log.Backups)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting listing sync...")
	log.Printf("Loaded %d saved searches", len(cfg.Searches))
	for _, s := range cfg.Searches {
		log.Printf("  - %s", s.Name)
	}

	clients := httputil.NewClients(&cfg.Proxy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite always holds operational data: commands and sync logs.
	sqliteStore, err := storage.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.Store.DBPath)

	var store storage.Store = sqliteStore
	if cfg.Store.Driver == "postgres" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Store.DatabaseURL))
	}

	feedLimiter := feed.NewRateLimiter(cfg.Feed.MaxPerSecond, cfg.Feed.MaxPerHour, nil)
	feedClient := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Token, clients.Feed, feedLimiter)
	feedClient.SetStatuses(toStatuses(cfg.Feed.Statuses))

	listingService := services.NewListingService(store, services.NewScorer(cfg.DedupeThreshold))

	eng := engine.New(feedClient, listingService, store)
	eng.SetPageSize(cfg.Feed.PageSize)
	eng.SetLogger(workers.NewSinkLogger(sqliteStore, eng.CurrentRunID))

	if cfg.Archive.Enabled() {
		archive, err := storage.NewS3Archive(ctx, storage.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to set up raw page archive: %v", err)
		}
		eng.SetArchiver(archive)
		log.Printf("Archiving raw pages to %s", archive.URL("raw/"))
	}

	var searchWorker *workers.SearchWorker
	if cfg.Search.BaseURL != "" {
		searchLimiter := feed.NewRateLimiter(cfg.Feed.MaxPerSecond, cfg.Feed.MaxPerHour, nil)
		searchClient := feed.NewSearchClient(cfg.Search.BaseURL, cfg.Search.APIKey, clients.Search, searchLimiter)
		searchWorker = workers.NewSearchWorker(searchClient, listingService, toQueries(cfg.Searches))
		searchWorker.SetLogger(workers.NewSinkLogger(sqliteStore, nil))
	}

	// Handle one-shot commands
	if *syncNow {
		log.Println("Running sync...")
		report, err := eng.Run(ctx)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Printf("Sync complete: %s", report.Summary())
		return
	}
	if *searchNow {
		if searchWorker == nil {
			log.Fatal("SEARCH_BASE_URL is not set")
		}
		for _, res := range searchWorker.RunOnce(ctx, "") {
			log.Printf("Search %s: %d synced, %d failed, err=%v", res.Search, res.Synced, len(res.Errors), res.Err)
		}
		return
	}

	// Daemon mode
	sched := scheduler.New(&cfg.Scheduler, eng, sqliteStore)
	if searchWorker != nil {
		sched.SetSearchWorker(searchWorker)
		go searchWorker.Run(ctx, cfg.Search.Interval)
		log.Println("Search worker started")
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(ctx, store, store, listingService, eng)
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("API listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("API server error: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

func toStatuses(names []string) []models.StandardStatus {
	out := make([]models.StandardStatus, 0, len(names))
	for _, n := range names {
		out = append(out, models.StandardStatus(n))
	}
	return out
}

func toQueries(searches []*config.SavedSearch) []feed.SearchQuery {
	out := make([]feed.SearchQuery, 0, len(searches))
	for _, s := range searches {
		out = append(out, feed.SearchQuery{
			Name:        s.Name,
			Cities:      s.Cities,
			PostalCodes: s.PostalCodes,
			MinPrice:    s.MinPrice,
			MaxPrice:    s.MaxPrice,
			MinBeds:     s.MinBeds,
			Statuses:    s.Statuses,
		})
	}
	return out
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}

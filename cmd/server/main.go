package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/api"
	"replay-analyzer/internal/batch"
	"replay-analyzer/internal/config"
	"replay-analyzer/internal/db"
	"replay-analyzer/internal/feed"
	"replay-analyzer/internal/metrics"
	"replay-analyzer/internal/shutdown"
)

const viewerPollInterval = 5 * time.Second

func main() {
	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded .env from: %s\n", path)
	} else {
		log.Println("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	schema, err := config.LoadSchema(cfg.SchemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.CreateTables(ctx); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	hub := feed.NewHub()
	m := metrics.New()

	runner := batch.NewRunner(batch.Options{
		InputDir: cfg.WarmDir(),
		Schema:   schema,
		Analyze:  analyzer.Options{TicksPerMinute: cfg.TicksPerMinute},
		Sinks:    []batch.Sink{database},
		Feed:     hub,
		Metrics:  m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(database, runner, http.HandlerFunc(hub.ServeWS), m.Handler()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		ticker := time.NewTicker(viewerPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.SetViewers(hub.Clients())
			}
		}
	}()

	go func() {
		fmt.Printf("Server starting on http://localhost:%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Server] %v", err)
		}
		stop()
	}()

	shutdown.WaitForSignal(runCtx, shutdown.DefaultGrace,
		shutdown.Hook{Name: "live feed", Stop: func(context.Context) error {
			hub.Close()
			return nil
		}},
		shutdown.Hook{Name: "http server", Stop: srv.Shutdown},
	)
	log.Println("[Server] Stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/batch"
	"replay-analyzer/internal/config"
	"replay-analyzer/internal/db"
	"replay-analyzer/internal/metrics"
	"replay-analyzer/internal/notify"
	"replay-analyzer/internal/shutdown"
	"replay-analyzer/internal/storage"
	"replay-analyzer/internal/store"
)

// CLI flags
var (
	skipSQLite   = flag.Bool("skip-sqlite", false, "Skip saving reports to SQLite")
	skipTurso    = flag.Bool("skip-turso", false, "Skip pushing reports to Turso")
	skipPostgres = flag.Bool("skip-postgres", false, "Skip saving reports to Postgres")
	skipAligned  = flag.Bool("skip-aligned", false, "Skip writing aligned logs")
	metricsAddr  = flag.String("metrics-addr", "", "Serve /metrics on this address while the batch runs (e.g. :9090)")
)

func main() {
	flag.Parse()

	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded .env from: %s\n", path)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StoragePath == "" {
		log.Fatal("BLOB_STORAGE_PATH environment variable not set")
	}

	schema, err := config.LoadSchema(cfg.SchemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	coldDir := cfg.ColdDir()
	alignedDir := filepath.Join(cfg.StoragePath, "aligned")
	for _, dir := range []string{coldDir, alignedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
	if *skipAligned {
		alignedDir = ""
	}

	rotator, err := storage.NewFileRotator(cfg.ReportDir(), storage.Options{
		MaxEntries: cfg.MaxFileEntries,
		MaxAge:     time.Duration(cfg.RotateAfterMins) * time.Minute,
		Prefix:     "reports",
	})
	if err != nil {
		log.Fatalf("Failed to create report rotator: %v", err)
	}
	defer rotator.Close()

	ctx := shutdown.SetupSignalHandler(shutdown.DefaultGrace, shutdown.Hook{
		Name: "batch runner",
		Stop: func(context.Context) error {
			log.Println("[Batch] Stopping after in-flight matches...")
			return nil
		},
	})

	sinks, index, closeSinks := openSinks(ctx, cfg)
	defer closeSinks()

	m := metrics.New()
	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Metrics] %v", err)
			}
		}()
		defer srv.Close()
	}

	var webhook *notify.WebhookClient
	if cfg.WebhookURL != "" {
		webhook = notify.NewWebhookClient(cfg.WebhookURL)
	}

	runner := batch.NewRunner(batch.Options{
		InputDir:   cfg.WarmDir(),
		ColdDir:    coldDir,
		AlignedDir: alignedDir,
		Workers:    cfg.Workers,
		Schema:     schema,
		Analyze:    analyzer.Options{TicksPerMinute: cfg.TicksPerMinute},
		Rotator:    rotator,
		Sinks:      sinks,
		Index:      index,
		Metrics:    m,
	})

	summary, err := runner.Run(ctx)
	if err != nil {
		if webhook != nil {
			if werr := webhook.SendBatchFailed(context.Background(), summary.RunID, err); werr != nil {
				log.Printf("[Discord] Failed to send notification: %v", werr)
			}
		}
		log.Fatalf("Batch run failed: %v", err)
	}

	fmt.Println("\n=== Batch Complete ===")
	fmt.Printf("Files:     %d\n", summary.Files)
	fmt.Printf("Processed: %d (aligned %d, unchanged %d, not aligned %d)\n",
		summary.Processed, summary.Aligned, summary.Unchanged, summary.Unaligned)
	fmt.Printf("Skipped:   %d\n", summary.Skipped)
	fmt.Printf("Failed:    %d\n", summary.Failed)
	fmt.Printf("Duration:  %s\n", summary.Duration.Round(time.Millisecond))

	if webhook != nil && summary.Files > 0 {
		if err := webhook.SendBatchSummary(context.Background(), summary.Notification()); err != nil {
			log.Printf("[Discord] Failed to send notification: %v", err)
		}
	}
}

// openSinks connects every configured report store. A store that cannot be
// reached is logged and left out of the run. The last store opened doubles as
// the index of matches stored by earlier runs.
func openSinks(ctx context.Context, cfg config.Config) ([]batch.Sink, batch.MatchIndex, func()) {
	var (
		sinks   []batch.Sink
		index   batch.MatchIndex
		closers []func()
	)

	if !*skipSQLite && cfg.SQLitePath != "" {
		s, err := store.Open(cfg.SQLitePath)
		if err == nil {
			err = s.CreateTables(ctx)
		}
		if err != nil {
			log.Printf("[SQLite] Warning: %v", err)
		} else {
			fmt.Printf("Saving reports to SQLite: %s\n", cfg.SQLitePath)
			sinks = append(sinks, s)
			index = s
			closers = append(closers, func() { s.Close() })
		}
	}

	if !*skipTurso && cfg.TursoURL != "" {
		s, err := store.OpenTurso(cfg.TursoURL, cfg.TursoAuthToken)
		if err == nil {
			err = s.CreateTables(ctx)
		}
		if err != nil {
			log.Printf("[Turso] Warning: %v", err)
		} else {
			fmt.Println("Pushing reports to Turso")
			sinks = append(sinks, s)
			index = s
			closers = append(closers, func() { s.Close() })
		}
	}

	if !*skipPostgres && cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err == nil {
			if err = database.CreateTables(ctx); err != nil {
				database.Close()
			}
		}
		if err != nil {
			log.Printf("[Postgres] Warning: %v", err)
		} else {
			fmt.Println("Saving reports to Postgres")
			sinks = append(sinks, database)
			index = database
			closers = append(closers, database.Close)
		}
	}

	return sinks, index, func() {
		for _, c := range closers {
			c()
		}
	}
}

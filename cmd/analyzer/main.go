package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/config"
	"replay-analyzer/internal/itemization"
	"replay-analyzer/internal/store"
	"replay-analyzer/internal/timesync"
)

// CLI flags
var (
	outputDir      = flag.String("output-dir", ".", "Directory for item_output.json, itemization files and the aligned log")
	schemaFile     = flag.String("schema", "", "YAML file overriding the log field layout (default: SCHEMA_FILE)")
	matchID        = flag.String("match", "", "Match id (default: derived from the file name)")
	ticksPerMinute = flag.Int64("ticks-per-minute", 0, "Ticks per game minute for the itemization summary (default: TICKS_PER_MINUTE)")
	strict         = flag.Bool("strict", false, "Fail when the combat log cannot be shifted safely")
	saveSQLite     = flag.Bool("save", false, "Save the report to the SQLite database at SQLITE_PATH")
	showMatch      = flag.String("show", "", "Print the stored itemization of a match from SQLITE_PATH and exit")
	listMatches    = flag.Int("list", 0, "List the N most recent matches stored in SQLITE_PATH and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <match_log.json[.gz]>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded .env from: %s\n", path)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *showMatch != "" || *listMatches > 0 {
		if cfg.SQLitePath == "" {
			log.Fatal("SQLITE_PATH environment variable not set")
		}
		if err := browse(cfg); err != nil {
			log.Fatalf("Failed to read %s: %v", cfg.SQLitePath, err)
		}
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	if *schemaFile == "" {
		*schemaFile = cfg.SchemaFile
	}
	schema, err := config.LoadSchema(*schemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	if *ticksPerMinute == 0 {
		*ticksPerMinute = cfg.TicksPerMinute
	}

	report, err := analyzer.AnalyzeFile(input, schema, analyzer.Options{
		MatchID:        *matchID,
		TicksPerMinute: *ticksPerMinute,
		Strict:         *strict,
	})
	if err != nil {
		log.Fatalf("Failed to analyze %s: %v", input, err)
	}

	printReport(report)

	written, err := analyzer.WriteOutputs(*outputDir, report)
	if err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}
	for _, path := range written {
		fmt.Printf("Data written to %s\n", path)
	}

	if *saveSQLite {
		if cfg.SQLitePath == "" {
			log.Fatal("SQLITE_PATH environment variable not set")
		}
		if err := save(cfg.SQLitePath, report); err != nil {
			log.Fatalf("Failed to save report: %v", err)
		}
		fmt.Printf("Saved match %s to %s\n", report.MatchID, cfg.SQLitePath)
	}
}

func printReport(r *analyzer.Report) {
	fmt.Printf("\n=== Match %s ===\n", r.MatchID)
	switch r.Status {
	case timesync.StatusAligned:
		fmt.Printf("Combat log shifted by %d ticks\n", r.Offset)
	case timesync.StatusUnchanged:
		fmt.Println("Combat log already aligned")
	default:
		fmt.Printf("Combat log not aligned: %s\n", r.Reason)
	}

	if r.End != nil {
		fmt.Printf("Match ended at tick %d (%s destroyed)", r.End.Tick, r.End.Target)
		if r.End.LosingTeam != 0 {
			fmt.Printf(", losing team %d", r.End.LosingTeam)
		}
		fmt.Println()
	}

	fmt.Printf("Players: %d, items: %d, events attributed: %d, dropped: %d\n",
		r.Stats.Entities, r.Stats.Objects, r.Stats.Attributed, r.Stats.Dropped)
}

// browse prints stored matches or one stored match
func browse(cfg config.Config) error {
	s, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer s.Close()
	return printStored(context.Background(), os.Stdout, s, *listMatches, *showMatch, cfg.TicksPerMinute)
}

// printStored lists the latest limit matches and renders the itemization of matchID
func printStored(ctx context.Context, w io.Writer, s *store.Store, limit int, matchID string, ticksPerMinute int64) error {
	if limit > 0 {
		matches, err := s.ListMatches(ctx, limit)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Fprintf(w, "%-24s %-13s offset %-7d players %-3d events %-5d %s\n",
				m.MatchID, m.Status, m.Offset, m.Entities, m.Attributed, m.ProcessedAt.Format(time.RFC3339))
		}
	}

	if matchID != "" {
		tl, err := s.LoadTimeline(ctx, matchID)
		if err != nil {
			return err
		}
		events, err := s.ItemEventCount(ctx, matchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n=== Match %s: %d players, %d item events ===", matchID, len(tl.Entities), events)
		fmt.Fprint(w, itemization.Format(itemization.Summarize(tl, ticksPerMinute)))
	}
	return nil
}

func save(path string, r *analyzer.Report) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.CreateTables(ctx); err != nil {
		return err
	}
	return s.SaveReport(ctx, r)
}

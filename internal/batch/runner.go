// Package batch analyzes every match log of a directory in parallel and hands
// the reports to the configured sinks.
package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/matchlog"
	"replay-analyzer/internal/metrics"
	"replay-analyzer/internal/notify"
	"replay-analyzer/internal/storage"
	"replay-analyzer/internal/timesync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 4

	// Dedup filter sizing
	expectedMatches = 500000
	falsePositive   = 0.001
)

// Sink receives every finished report
type Sink interface {
	SaveReport(ctx context.Context, r *analyzer.Report) error
}

// Publisher announces finished reports to live viewers
type Publisher interface {
	Broadcast(v any) error
}

// MatchIndex tells whether a match was stored by an earlier run
type MatchIndex interface {
	MatchExists(ctx context.Context, matchID string) (bool, error)
}

// Options configures a Runner. Only InputDir is required.
type Options struct {
	InputDir   string
	ColdDir    string // processed inputs are archived here when set
	AlignedDir string // aligned logs are written here when set
	Workers    int

	Schema  matchlog.Schema
	Analyze analyzer.Options

	Rotator *storage.FileRotator
	Sinks   []Sink
	Feed    Publisher
	Metrics *metrics.Metrics

	// Index, when set, skips matches already stored; their inputs are archived
	Index MatchIndex
}

// Summary describes one run
type Summary struct {
	RunID     string        `json:"runId"`
	Files     int           `json:"files"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Aligned   int           `json:"aligned"`
	Unchanged int           `json:"unchanged"`
	Unaligned int           `json:"unaligned"`
	Duration  time.Duration `json:"duration"`
	Finished  time.Time     `json:"finished"`
}

// Notification converts the summary for the webhook
func (s Summary) Notification() notify.BatchSummary {
	return notify.BatchSummary{
		RunID:     s.RunID,
		Processed: s.Processed,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		Aligned:   s.Aligned + s.Unchanged,
		Unaligned: s.Unaligned,
		Duration:  s.Duration,
		Finished:  s.Finished,
	}
}

// FeedEvent is broadcast for every delivered report
type FeedEvent struct {
	Type    string `json:"type"`
	RunID   string `json:"runId,omitempty"`
	MatchID string `json:"matchId"`
	Status  string `json:"status"`
	Offset  int64  `json:"offset"`
	Reason  string `json:"reason,omitempty"`
}

// Runner processes match logs. Matches are independent of each other and run
// in parallel; the ticks of one match are always handled by one goroutine.
type Runner struct {
	opts Options

	seenMu  sync.Mutex
	seen    *bloom.BloomFilter
	seenIDs map[string]struct{}
}

// NewRunner creates a runner. The dedup filter lives as long as the runner.
func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Schema.ItemsSection == "" {
		opts.Schema = matchlog.DefaultSchema()
	}
	return &Runner{
		opts:    opts,
		seen:    bloom.NewWithEstimates(expectedMatches, falsePositive),
		seenIDs: make(map[string]struct{}),
	}
}

// markSeen reports whether matchID was new and records it. A filter miss is
// final; a filter hit is confirmed against the exact id set.
func (r *Runner) markSeen(matchID string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen.TestString(matchID) {
		if _, ok := r.seenIDs[matchID]; ok {
			return false
		}
	}
	r.seen.AddString(matchID)
	r.seenIDs[matchID] = struct{}{}
	return true
}

// stored asks the index whether matchID was saved by an earlier run. Index
// errors are logged and the match is processed.
func (r *Runner) stored(ctx context.Context, matchID string) bool {
	if r.opts.Index == nil {
		return false
	}
	exists, err := r.opts.Index.MatchExists(ctx, matchID)
	if err != nil {
		log.Printf("[Batch] Warning: %s: index: %v", matchID, err)
		return false
	}
	return exists
}

// Inputs lists the match logs waiting in the input directory
func (r *Runner) Inputs() ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.json.gz"} {
		matches, err := filepath.Glob(filepath.Join(r.opts.InputDir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every log of the input directory once. A failing match is
// counted and logged; only cancellation stops the run early.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: uuid.NewString()}

	if _, err := os.Stat(r.opts.InputDir); err != nil {
		return summary, fmt.Errorf("input directory: %w", err)
	}
	files, err := r.Inputs()
	if err != nil {
		return summary, fmt.Errorf("failed to scan input directory: %w", err)
	}
	summary.Files = len(files)
	log.Printf("[Batch] Run %s: %d files in %s", summary.RunID, len(files), r.opts.InputDir)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, path := range files {
		matchID := matchlog.MatchIDFromPath(path)
		if !r.markSeen(matchID) {
			log.Printf("[Batch] %s: match %s already processed, skipping", filepath.Base(path), matchID)
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}

		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if r.stored(ctx, matchID) {
				log.Printf("[Batch] %s: match %s already stored, skipping", filepath.Base(path), matchID)
				r.archive(path)
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}

			report, err := r.process(ctx, path, matchID, summary.RunID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[Batch] %s: %v", filepath.Base(path), err)
				summary.Failed++
				return nil
			}
			summary.Processed++
			switch report.Status {
			case timesync.StatusAligned:
				summary.Aligned++
			case timesync.StatusUnchanged:
				summary.Unchanged++
			default:
				summary.Unaligned++
			}
			return nil
		})
	}

	err = g.Wait()
	summary.Duration = time.Since(started)
	summary.Finished = time.Now()
	if r.opts.Metrics != nil {
		r.opts.Metrics.BatchFinished(summary.Finished)
	}

	log.Printf("[Batch] Run %s: %d processed, %d skipped, %d failed in %s",
		summary.RunID, summary.Processed, summary.Skipped, summary.Failed, summary.Duration.Round(time.Millisecond))
	return summary, err
}

// process analyzes one file, delivers the report and archives the input
func (r *Runner) process(ctx context.Context, path, matchID, runID string) (*analyzer.Report, error) {
	started := time.Now()

	opts := r.opts.Analyze
	opts.MatchID = matchID
	report, err := analyzer.AnalyzeFile(path, r.opts.Schema, opts)
	if err != nil {
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveFailure()
		}
		return nil, err
	}
	report.RunID = runID

	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveMatch(string(report.Status), report.Offset,
			report.Stats.Attributed, report.Stats.Dropped, time.Since(started))
	}

	if err := r.Deliver(ctx, report); err != nil {
		return nil, err
	}

	r.archive(path)
	return report, nil
}

// archive moves a handled input to the cold directory, if one is configured
func (r *Runner) archive(path string) {
	if r.opts.ColdDir == "" {
		return
	}
	if _, err := storage.ArchiveToCold(path, r.opts.ColdDir); err != nil {
		log.Printf("[Batch] Warning: failed to archive %s: %v", filepath.Base(path), err)
	}
}

// Deliver writes a finished report to the rotator, the sinks and the feed.
// Sink failures are logged; a rotator failure is returned.
func (r *Runner) Deliver(ctx context.Context, report *analyzer.Report) error {
	if r.opts.Rotator != nil {
		if err := r.opts.Rotator.Append(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if r.opts.AlignedDir != "" && report.Aligned != nil {
		path := filepath.Join(r.opts.AlignedDir, report.MatchID+"_updated_log.json")
		if err := matchlog.Write(path, report.Aligned); err != nil {
			log.Printf("[Batch] Warning: %s: %v", report.MatchID, err)
		}
	}

	for _, sink := range r.opts.Sinks {
		if err := sink.SaveReport(ctx, report); err != nil {
			log.Printf("[Batch] Warning: %s: sink: %v", report.MatchID, err)
		}
	}

	if r.opts.Feed != nil {
		event := FeedEvent{
			Type:    "match",
			RunID:   report.RunID,
			MatchID: report.MatchID,
			Status:  string(report.Status),
			Offset:  report.Offset,
			Reason:  report.Reason,
		}
		if err := r.opts.Feed.Broadcast(event); err != nil {
			log.Printf("[Batch] Warning: %s: feed: %v", report.MatchID, err)
		}
	}
	return nil
}

// Ingest analyzes a log received in memory and delivers the report
func (r *Runner) Ingest(ctx context.Context, matchID string, data []byte) (*analyzer.Report, error) {
	l, err := matchlog.Parse(data)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	opts := r.opts.Analyze
	opts.MatchID = matchID
	report, err := analyzer.Analyze(l, r.opts.Schema, opts)
	if err != nil {
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveFailure()
		}
		return nil, err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveMatch(string(report.Status), report.Offset,
			report.Stats.Attributed, report.Stats.Dropped, time.Since(started))
	}

	r.markSeen(matchID)
	return report, r.Deliver(ctx, report)
}

// Package analyzer runs the full single-match pipeline: reconcile the combat
// stream onto the structure time base, attribute items, normalize and summarize.
package analyzer

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"replay-analyzer/internal/itemization"
	"replay-analyzer/internal/matchlog"
	"replay-analyzer/internal/timeline"
	"replay-analyzer/internal/timesync"
)

var ErrNoLog = errors.New("no match log")

// Options tune a single Analyze call
type Options struct {
	MatchID        string
	TicksPerMinute int64

	// Strict turns a failed combat log shift into a returned error.
	// Otherwise the pipeline carries on with the unshifted log.
	Strict bool

	Now func() time.Time
}

// MatchEnd is where the match ended according to the anchor structures
type MatchEnd struct {
	Tick       int64  `json:"tick"`
	CombatTick int64  `json:"combat_tick"`
	Target     string `json:"target"`
	Structure  string `json:"structure"`
	LosingTeam int64  `json:"losing_team,omitempty"`
}

// Stats condenses the per-stage counters
type Stats struct {
	Entities       int `json:"entities"`
	RosterSkipped  int `json:"roster_skipped"`
	Objects        int `json:"objects"`
	Events         int `json:"events"`
	Attributed     int `json:"attributed"`
	Dropped        int `json:"dropped"`
	MalformedTicks int `json:"malformed_ticks"`
}

// Report is the outcome of analyzing one match
type Report struct {
	MatchID     string                  `json:"match_id"`
	RunID       string                  `json:"run_id,omitempty"`
	ProcessedAt time.Time               `json:"processed_at"`
	Status      timesync.Status         `json:"status"`
	Offset      int64                   `json:"offset"`
	Reason      string                  `json:"reason,omitempty"`
	End         *MatchEnd               `json:"end,omitempty"`
	Stats       Stats                   `json:"stats"`
	Timeline    timeline.Timeline       `json:"timeline"`
	Summary     []itemization.HeroItems `json:"summary"`
	BuildPaths  []itemization.HeroPath  `json:"build_paths"`

	// Aligned is the shifted log, nil unless Status is aligned
	Aligned *matchlog.Log `json:"-"`
}

// Analyze runs every stage over l. Missing data never fails the call; it shows
// up as a status, a reason and counters on the report.
func Analyze(l *matchlog.Log, schema matchlog.Schema, opts Options) (*Report, error) {
	if l == nil {
		return nil, ErrNoLog
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	report := &Report{MatchID: opts.MatchID, ProcessedAt: now().UTC()}
	tag := opts.MatchID
	if tag == "" {
		tag = "-"
	}

	result, err := timesync.Reconcile(l, schema)
	report.Status = result.Status
	report.Reason = result.Reason
	if err != nil {
		log.Printf("[Analyzer] %s: %v", tag, err)
		if opts.Strict {
			return report, fmt.Errorf("match %s: %w", tag, err)
		}
	}
	if result.Status == timesync.StatusAligned {
		report.Offset = result.Offset
		report.Aligned = result.Log
	}
	if result.Status != timesync.StatusCannotAlign {
		report.End = &MatchEnd{
			Tick:       result.StructureEnd.DestroyedAt,
			CombatTick: result.CombatEnd.Tick,
			Target:     result.CombatEnd.Target,
			Structure:  result.StructureEnd.ID,
			LosingTeam: result.LosingTeam(),
		}
	} else if err == nil {
		log.Printf("[Analyzer] %s: not aligned: %s", tag, result.Reason)
	}

	// Items are read from the aligned log so a second pass sees one time base
	reg, resolved := timeline.ResolveRegistry(result.Log, schema)
	if resolved.Reason != "" {
		log.Printf("[Analyzer] %s: registry: %s", tag, resolved.Reason)
	}
	if len(resolved.Duplicates) > 0 {
		log.Printf("[Analyzer] %s: registry: duplicate owner for %s", tag, strings.Join(resolved.Duplicates, ", "))
	}

	attributed := timeline.Attribute(result.Log, schema, reg)
	if len(attributed.MalformedTicks) > 0 {
		log.Printf("[Analyzer] %s: attribute: skipped tick keys %s in %q",
			tag, strings.Join(attributed.MalformedTicks, ", "), schema.ItemsSection)
	}

	report.Timeline = timeline.Normalize(reg)
	report.Summary = itemization.Summarize(report.Timeline, opts.TicksPerMinute)
	report.BuildPaths = itemization.BuildPaths(report.Timeline)
	report.Stats = Stats{
		Entities:       reg.Len(),
		RosterSkipped:  len(resolved.MissingOwner) + len(resolved.Duplicates),
		Objects:        reg.Objects().Len(),
		Events:         attributed.Events,
		Attributed:     attributed.Attributed,
		Dropped:        attributed.Dropped(),
		MalformedTicks: len(attributed.MalformedTicks),
	}
	return report, nil
}

// AnalyzeFile loads a log from disk and analyzes it. The match id defaults to
// the one encoded in the file name.
func AnalyzeFile(path string, schema matchlog.Schema, opts Options) (*Report, error) {
	l, err := matchlog.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.MatchID == "" {
		opts.MatchID = matchlog.MatchIDFromPath(path)
	}
	return Analyze(l, schema, opts)
}

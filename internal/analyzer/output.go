package analyzer

import (
	"fmt"
	"os"
	"path/filepath"

	"replay-analyzer/internal/itemization"
	"replay-analyzer/internal/matchlog"

	json "github.com/goccy/go-json"
)

// Output file names
const (
	TimelineFile        = "item_output.json"
	ItemizationTextFile = "itemization.txt"
	ItemizationJSONFile = "itemization.json"
	BuildPathFile       = "build_path.json"
	alignedSuffix       = "_updated_log.json"
)

// AlignedLogName is the file name of the aligned log of a match
func AlignedLogName(matchID string) string {
	return matchID + alignedSuffix
}

// WriteOutputs writes the timeline, the itemization summary in both forms, the
// build paths and, when the combat log was shifted, the aligned log. It returns the written paths.
func WriteOutputs(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	writeJSON := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", " ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if err := writeJSON(TimelineFile, r.Timeline); err != nil {
		return written, err
	}

	summary := r.Summary
	if summary == nil {
		summary = []itemization.HeroItems{}
	}
	if err := writeJSON(ItemizationJSONFile, summary); err != nil {
		return written, err
	}

	textPath := filepath.Join(dir, ItemizationTextFile)
	if err := os.WriteFile(textPath, []byte(itemization.Format(summary)), 0644); err != nil {
		return written, fmt.Errorf("failed to write %s: %w", ItemizationTextFile, err)
	}
	written = append(written, textPath)

	paths := r.BuildPaths
	if paths == nil {
		paths = []itemization.HeroPath{}
	}
	if err := writeJSON(BuildPathFile, paths); err != nil {
		return written, err
	}

	if r.Aligned != nil {
		name := AlignedLogName(r.MatchID)
		if r.MatchID == "" {
			name = AlignedLogName("match")
		}
		path := filepath.Join(dir, name)
		if err := matchlog.Write(path, r.Aligned); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

package matchlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/pretty"
)

// Known file name suffixes of replay dumps, stripped to recover the match id
var logSuffixes = []string{"_combined_log", "_updated_log", "_log"}

// Load reads a match log from disk. Files ending in .gz are decompressed.
func Load(path string) (*Log, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return parsed, nil
}

// Write stores a log indented by one space, the layout of the original dumps
func Write(path string, l *Log) error {
	out := pretty.PrettyOptions(l.Bytes(), &pretty.Options{
		Width:  80,
		Indent: " ",
	})

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// MatchIDFromPath derives the match id from a dump file name,
// e.g. "8182713861_1523041035_combined_log.json.gz" -> "8182713861_1523041035"
func MatchIDFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".json")
	for _, suffix := range logSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

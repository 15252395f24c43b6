package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

const (
	// Rotation triggers
	DefaultMaxEntries = 1000
	DefaultMaxAge     = 1 * time.Hour
)

// Options control when the rotator starts a new file
type Options struct {
	MaxEntries int
	MaxAge     time.Duration
	Prefix     string
}

// FileRotator appends records to rotating JSONL files. Files are written in
// the active directory and moved to the closed directory once rotated.
type FileRotator struct {
	mu sync.Mutex

	activeDir string
	closedDir string
	opts      Options
	now       func() time.Time

	currentFile   *os.File
	currentWriter *bufio.Writer
	currentPath   string
	entryCount    int
	fileOpenedAt  time.Time
	sequence      int
}

// NewFileRotator creates a rotator under baseDir
func NewFileRotator(baseDir string, opts Options) (*FileRotator, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Prefix == "" {
		opts.Prefix = "reports"
	}

	r := &FileRotator{
		activeDir: filepath.Join(baseDir, "active"),
		closedDir: filepath.Join(baseDir, "closed"),
		opts:      opts,
		now:       time.Now,
	}
	for _, dir := range []string{r.activeDir, r.closedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Append writes one record as a JSON line, flushes it and rotates if needed
func (r *FileRotator) Append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return fmt.Errorf("rotator is closed")
	}
	if _, err := r.currentWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := r.currentWriter.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	r.entryCount++

	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if r.shouldRotate() {
		return r.rotate()
	}
	return nil
}

func (r *FileRotator) shouldRotate() bool {
	if r.currentFile == nil {
		return true
	}
	if r.entryCount >= r.opts.MaxEntries {
		return true
	}
	return r.now().Sub(r.fileOpenedAt) >= r.opts.MaxAge
}

// rotate closes the current file, if any, and opens a new one
func (r *FileRotator) rotate() error {
	if r.currentFile != nil {
		if err := r.closeCurrent(); err != nil {
			return err
		}
	}

	r.sequence++
	filename := fmt.Sprintf("%s_%s_%03d.jsonl", r.opts.Prefix, r.now().Format("2006-01-02_15-04-05"), r.sequence)
	r.currentPath = filepath.Join(r.activeDir, filename)

	file, err := os.Create(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	r.currentFile = file
	r.currentWriter = bufio.NewWriterSize(file, 64*1024)
	r.entryCount = 0
	r.fileOpenedAt = r.now()
	return nil
}

// closeCurrent moves a non-empty file to the closed directory and drops an empty one
func (r *FileRotator) closeCurrent() error {
	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := r.currentFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	r.currentFile = nil

	if r.entryCount == 0 {
		os.Remove(r.currentPath)
		return nil
	}

	closedPath := filepath.Join(r.closedDir, filepath.Base(r.currentPath))
	if err := os.Rename(r.currentPath, closedPath); err != nil {
		return fmt.Errorf("failed to move to closed storage: %w", err)
	}
	fmt.Printf("[Rotator] Closed %s (%d entries)\n", filepath.Base(r.currentPath), r.entryCount)
	return nil
}

// Close flushes and closes the current file
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return nil
	}
	return r.closeCurrent()
}

// ClosedDir is where finished files land
func (r *FileRotator) ClosedDir() string {
	return r.closedDir
}

// Stats returns current rotator statistics
func (r *FileRotator) Stats() (entriesInCurrentFile int, currentFileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryCount, filepath.Base(r.currentPath)
}

// CompressToCold gzips a file into coldDir and removes the original
func CompressToCold(srcPath, coldDir string) (string, error) {
	if err := os.MkdirAll(coldDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cold directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(srcPath)+".gz")
	dst, err := os.Create(coldPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	gzWriter := gzip.NewWriter(dst)
	if _, err := io.Copy(gzWriter, src); err != nil {
		os.Remove(coldPath)
		return "", err
	}
	if err := gzWriter.Close(); err != nil {
		os.Remove(coldPath)
		return "", err
	}

	// Close before removing on Windows
	src.Close()
	if err := os.Remove(srcPath); err != nil {
		return "", err
	}
	return coldPath, nil
}

// ArchiveToCold moves a processed file into coldDir. Files that are already
// gzipped are moved as they are; anything else is compressed on the way.
func ArchiveToCold(path, coldDir string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return CompressToCold(path, coldDir)
	}
	if err := os.MkdirAll(coldDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cold directory: %w", err)
	}
	coldPath := filepath.Join(coldDir, filepath.Base(path))
	if err := os.Rename(path, coldPath); err != nil {
		return "", err
	}
	return coldPath, nil
}

package storage

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saviobatista/pigeon-post/internal/types"
)

const filePrefix = "post_events_"

// ErrStopped is returned by WriteEvent once the journal has been stopped
var ErrStopped = errors.New("journal stopped")

// Journal appends post events to daily JSON-lines files
type Journal struct {
	outputDir string
	file      *os.File
	day       string
	now       func() time.Time
	mu        sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new Journal writing into outputDir
func New(outputDir string) *Journal {
	return &Journal{
		outputDir: outputDir,
		now:       func() time.Time { return time.Now().UTC() },
		stopChan:  make(chan struct{}),
	}
}

// FileName returns the journal file name for the given day
func FileName(day time.Time) string {
	return fmt.Sprintf("%s%s.jsonl", filePrefix, day.UTC().Format("2006-01-02"))
}

// Start opens today's file and starts the rotation timer
func (j *Journal) Start() error {
	j.mu.Lock()
	err := j.rotateFile()
	j.mu.Unlock()
	if err != nil {
		return err
	}

	j.wg.Add(1)
	go j.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (j *Journal) Stop() error {
	select {
	case <-j.stopChan:
	default:
		close(j.stopChan)
	}
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

// WriteEvent appends one event as a JSON line
func (j *Journal) WriteEvent(ev *types.PostEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	select {
	case <-j.stopChan:
		return ErrStopped
	default:
	}

	// A write after midnight lands in the new day's file even if the timer has not fired yet
	if j.file == nil || j.day != j.now().Format("2006-01-02") {
		if err := j.rotateFile(); err != nil {
			return err
		}
	}

	_, err = j.file.Write(append(data, '\n'))
	return err
}

// rotationTimer handles daily rotation at midnight UTC
func (j *Journal) rotationTimer() {
	defer j.wg.Done()

	for {
		now := j.now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		select {
		case <-time.After(nextMidnight.Sub(now)):
			if err := j.rotateAndCompress(); err != nil {
				log.Printf("Warning: journal rotation failed: %v", err)
			}
		case <-j.stopChan:
			return
		}
	}
}

// rotateAndCompress opens today's file and compresses the previous day's file
func (j *Journal) rotateAndCompress() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotateFile(); err != nil {
		return err
	}

	yesterday := filepath.Join(j.outputDir, FileName(j.now().AddDate(0, 0, -1)))
	if _, err := os.Stat(yesterday); err == nil {
		if err := compressFile(yesterday); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
	}

	return nil
}

// compressFile gzips a file next to itself and removes the original
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return err
	}

	// Close the gzip writer to flush the footer
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// rotateFile closes the current file and opens the one for today. Callers hold mu.
func (j *Journal) rotateFile() error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}

	now := j.now()
	filename := filepath.Join(j.outputDir, FileName(now))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}

	j.file = file
	j.day = now.Format("2006-01-02")
	return nil
}

// Package resume implements the sentinel files and the resume guard that
// decide how an export may start when prior run state exists.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rgonek/confluence-space-export/internal/fs"
)

// Sentinel file names at the output directory root.
const (
	InProgressFileName = ".export-in-progress"
	CompletedFileName  = ".export-completed"
)

// InProgressSentinel marks an export that has started and not cleanly exited.
type InProgressSentinel struct {
	Timestamp time.Time `json:"timestamp"`
	Signal    string    `json:"signal,omitempty"`
	Message   string    `json:"message,omitempty"`
	SpaceKey  string    `json:"spaceKey"`
}

// CompletedSentinel marks an export that finished successfully.
type CompletedSentinel struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// WriteInProgress writes the in-progress sentinel atomically.
func WriteInProgress(outputDir string, sentinel InProgressSentinel) error {
	if sentinel.Timestamp.IsZero() {
		sentinel.Timestamp = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(sentinel, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal in-progress sentinel: %w", err)
	}
	raw = append(raw, '\n')
	return fs.WriteFileAtomic(filepath.Join(outputDir, InProgressFileName), raw)
}

// WriteCompleted writes the completed sentinel atomically.
func WriteCompleted(outputDir string, sentinel CompletedSentinel) error {
	if sentinel.Timestamp.IsZero() {
		sentinel.Timestamp = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(sentinel, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal completed sentinel: %w", err)
	}
	raw = append(raw, '\n')
	return fs.WriteFileAtomic(filepath.Join(outputDir, CompletedFileName), raw)
}

// ReadInProgress reads the in-progress sentinel. Missing file returns
// (zero, false, nil).
func ReadInProgress(outputDir string) (InProgressSentinel, bool, error) {
	path := filepath.Join(outputDir, InProgressFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return InProgressSentinel{}, false, nil
		}
		return InProgressSentinel{}, false, err
	}
	var sentinel InProgressSentinel
	if err := json.Unmarshal(raw, &sentinel); err != nil {
		// A corrupt sentinel still signals an unclean prior run.
		return InProgressSentinel{}, true, nil
	}
	return sentinel, true, nil
}

// ReadCompleted reads the completed sentinel. Missing file returns
// (zero, false, nil).
func ReadCompleted(outputDir string) (CompletedSentinel, bool, error) {
	path := filepath.Join(outputDir, CompletedFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CompletedSentinel{}, false, nil
		}
		return CompletedSentinel{}, false, err
	}
	var sentinel CompletedSentinel
	if err := json.Unmarshal(raw, &sentinel); err != nil {
		return CompletedSentinel{}, true, nil
	}
	return sentinel, true, nil
}

// RemoveInProgress deletes the in-progress sentinel.
func RemoveInProgress(outputDir string) error {
	err := os.Remove(filepath.Join(outputDir, InProgressFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveCompleted deletes the completed sentinel.
func RemoveCompleted(outputDir string) error {
	err := os.Remove(filepath.Join(outputDir, CompletedFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

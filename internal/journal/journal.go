// Package journal implements the per-item resume journal: a log of pipeline
// status transitions used to continue an interrupted export.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rgonek/confluence-space-export/internal/fs"
)

// FileName is the journal file written at the output directory root.
const FileName = "resume-journal.json"

// Entry types.
const (
	TypePage       = "page"
	TypeAttachment = "attachment"
)

// Entry statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry records the pipeline status of one page or attachment.
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Journal tracks per-item export progress. Safe for concurrent use.
type Journal struct {
	mu       sync.Mutex
	spaceKey string
	entries  map[string]Entry
}

type journalFile struct {
	SpaceKey string           `json:"spaceKey"`
	Entries  map[string]Entry `json:"entries"`
}

// New returns an empty journal for a space.
func New(spaceKey string) *Journal {
	return &Journal{
		spaceKey: spaceKey,
		entries:  map[string]Entry{},
	}
}

// SpaceKey returns the space the journal belongs to.
func (j *Journal) SpaceKey() string {
	return j.spaceKey
}

// Record sets the status of an item, stamping the transition time.
func (j *Journal) Record(id, entryType, status, path, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[id] = Entry{
		ID:        id,
		Type:      entryType,
		Status:    status,
		Path:      path,
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// Get returns the journal entry for an item.
func (j *Journal) Get(id string) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[id]
	return entry, ok
}

// CompletedIDs returns the IDs of all completed entries of the given type.
func (j *Journal) CompletedIDs(entryType string) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []string{}
	for id, entry := range j.entries {
		if entry.Type == entryType && entry.Status == StatusCompleted {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of journal entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Save writes the journal atomically.
func (j *Journal) Save(path string) error {
	j.mu.Lock()
	snapshot := journalFile{
		SpaceKey: j.spaceKey,
		Entries:  make(map[string]Entry, len(j.entries)),
	}
	for id, entry := range j.entries {
		snapshot.Entries[id] = entry
	}
	j.mu.Unlock()

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	raw = append(raw, '\n')
	return fs.WriteFileAtomic(path, raw)
}

// Load reads a journal file. A missing file returns an empty journal for the
// given space.
func Load(path, spaceKey string) (*Journal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(spaceKey), nil
		}
		return nil, err
	}

	var file journalFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse journal %s: %w", path, err)
	}
	if file.Entries == nil {
		file.Entries = map[string]Entry{}
	}
	if file.SpaceKey == "" {
		file.SpaceKey = spaceKey
	}
	return &Journal{
		spaceKey: file.SpaceKey,
		entries:  file.Entries,
	}, nil
}

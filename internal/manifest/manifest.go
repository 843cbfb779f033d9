// Package manifest implements the versioned export manifest: the
// authoritative end-of-run listing of exported pages, keyed by page ID.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rgonek/confluence-space-export/internal/fs"
)

// FileName is the manifest file written at the output directory root.
const FileName = "manifest.json"

// FormatVersion is the current manifest schema version.
const FormatVersion = 2

// Entry status values.
const (
	StatusExported  = "exported"
	StatusUnchanged = "unchanged"
	StatusDenied    = "denied"
	StatusRemoved   = "removed"
	StatusSkipped   = "skipped"
)

// Entry describes one page in the manifest.
type Entry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	Status   string `json:"status"`
	Version  int    `json:"version,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Manifest is the on-disk manifest document.
type Manifest struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	SpaceKey  string    `json:"spaceKey"`
	Entries   []Entry   `json:"entries"`
}

// New returns an empty manifest for a space.
func New(spaceKey string) *Manifest {
	return &Manifest{
		Version:  FormatVersion,
		SpaceKey: spaceKey,
		Entries:  []Entry{},
	}
}

// Validate checks the structural invariants of every entry.
func (m *Manifest) Validate() error {
	seen := map[string]struct{}{}
	for _, entry := range m.Entries {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("manifest entry with empty id (title %q)", entry.Title)
		}
		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("duplicate manifest entry for page %s", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		switch entry.Status {
		case StatusExported, StatusUnchanged:
			if entry.Path == "" || entry.Hash == "" {
				return fmt.Errorf("page %s: status %s requires path and hash", entry.ID, entry.Status)
			}
		case StatusDenied, StatusRemoved, StatusSkipped:
			if entry.Path != "" || entry.Hash != "" {
				return fmt.Errorf("page %s: status %s must not carry path or hash", entry.ID, entry.Status)
			}
		default:
			return fmt.Errorf("page %s: unknown status %q", entry.ID, entry.Status)
		}
	}
	return nil
}

// Upsert inserts or replaces the entry with the same ID.
func (m *Manifest) Upsert(entry Entry) {
	for i := range m.Entries {
		if m.Entries[i].ID == entry.ID {
			m.Entries[i] = entry
			return
		}
	}
	m.Entries = append(m.Entries, entry)
}

// Get returns the entry for a page ID.
func (m *Manifest) Get(id string) (Entry, bool) {
	for _, entry := range m.Entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// sortEntries orders entries by ID for canonical output.
func (m *Manifest) sortEntries() {
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].ID < m.Entries[j].ID
	})
}

// Save validates the manifest and writes canonical pretty JSON atomically.
func Save(path string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	m.sortEntries()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	raw = append(raw, '\n')
	return fs.WriteFileAtomic(path, raw)
}

// Load reads a manifest file. A missing file returns (nil, os.ErrNotExist).
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Entries == nil {
		m.Entries = []Entry{}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Diff compares two manifests into four disjoint sets keyed by page ID.
type Diff struct {
	Added     []Entry
	Modified  []Entry
	Deleted   []Entry
	Unchanged []Entry
}

// Compare diffs old against new. Added entries exist only in new, deleted only
// in old; entries with the same ID but any differing field are modified.
func Compare(old, new *Manifest) Diff {
	oldByID := map[string]Entry{}
	if old != nil {
		for _, entry := range old.Entries {
			oldByID[entry.ID] = entry
		}
	}
	newByID := map[string]Entry{}
	if new != nil {
		for _, entry := range new.Entries {
			newByID[entry.ID] = entry
		}
	}

	diff := Diff{}
	for _, id := range sortedKeys(newByID) {
		entry := newByID[id]
		previous, existed := oldByID[id]
		switch {
		case !existed:
			diff.Added = append(diff.Added, entry)
		case previous != entry:
			diff.Modified = append(diff.Modified, entry)
		default:
			diff.Unchanged = append(diff.Unchanged, entry)
		}
	}
	for _, id := range sortedKeys(oldByID) {
		if _, exists := newByID[id]; !exists {
			diff.Deleted = append(diff.Deleted, oldByID[id])
		}
	}
	return diff
}

func sortedKeys(in map[string]Entry) []string {
	out := make([]string, 0, len(in))
	for key := range in {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rgonek/confluence-space-export/internal/fs"
)

// SnapshotFileName is the queue snapshot written at the output directory root.
const SnapshotFileName = ".queue-state.json"

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// DefaultBackupRetention is how many rolling backups are kept.
const DefaultBackupRetention = 3

// Snapshot is the canonical persisted queue state. QueueItems are sorted by
// page ID and ProcessedPageIDs lexicographically; the checksum is the hex
// SHA-256 of the snapshot JSON with the checksum field empty.
type Snapshot struct {
	Version          int             `json:"version"`
	Timestamp        time.Time       `json:"timestamp"`
	SpaceKey         string          `json:"spaceKey"`
	QueueItems       []Item          `json:"queueItems"`
	ProcessedPageIDs []string        `json:"processedPageIds"`
	Metrics          MetricsSnapshot `json:"metrics"`
	Checksum         string          `json:"checksum"`
}

// RecoveryReport describes how a snapshot restore was satisfied.
type RecoveryReport struct {
	Source         string // "snapshot", "repair", "backup", "fresh"
	BackupUsed     string
	DroppedItems   int
	RecoveredItems int
}

// Snapshot clones the queue state under the lock and seals it with a checksum.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	items := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		items = append(items, *item)
	}
	processed := make([]string, 0, len(q.processed))
	for id := range q.processed {
		processed = append(processed, id)
	}
	metrics := q.metrics.snapshot(q.activeCountLocked())
	spaceKey := q.spaceKey
	q.changesSincePersist = 0
	q.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].PageID < items[j].PageID })
	sort.Strings(processed)

	snapshot := Snapshot{
		Version:          SnapshotVersion,
		Timestamp:        time.Now().UTC(),
		SpaceKey:         spaceKey,
		QueueItems:       items,
		ProcessedPageIDs: processed,
		Metrics:          metrics,
	}
	snapshot.Checksum = snapshot.computeChecksum()
	return snapshot
}

func (s Snapshot) computeChecksum() string {
	unsealed := s
	unsealed.Checksum = ""
	raw, err := json.Marshal(unsealed)
	if err != nil {
		return ""
	}
	return fs.ContentHash(raw)
}

// VerifyChecksum reports whether the stored checksum matches the content.
func (s Snapshot) VerifyChecksum() bool {
	return s.Checksum != "" && s.Checksum == s.computeChecksum()
}

// validate checks structural snapshot invariants.
func (s Snapshot) validate() error {
	if s.Version <= 0 {
		return fmt.Errorf("invalid snapshot version %d", s.Version)
	}
	seen := map[string]struct{}{}
	for _, item := range s.QueueItems {
		if item.PageID == "" {
			return fmt.Errorf("snapshot item with empty page ID")
		}
		if _, dup := seen[item.PageID]; dup {
			return fmt.Errorf("duplicate snapshot item %s", item.PageID)
		}
		seen[item.PageID] = struct{}{}
		switch item.Status {
		case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		default:
			return fmt.Errorf("item %s: unknown status %q", item.PageID, item.Status)
		}
	}
	return nil
}

// Persist writes the snapshot atomically, rotating the previous snapshot into
// a timestamped backup and pruning old backups.
func Persist(outputDir string, snapshot Snapshot, retention int) error {
	if retention <= 0 {
		retention = DefaultBackupRetention
	}
	path := filepath.Join(outputDir, SnapshotFileName)

	if _, err := os.Stat(path); err == nil {
		backup := fmt.Sprintf("%s.backup.%d", path, time.Now().UnixMilli())
		if existing, readErr := os.ReadFile(path); readErr == nil {
			_ = fs.WriteFileAtomic(backup, existing)
		}
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue snapshot: %w", err)
	}
	raw = append(raw, '\n')
	if err := fs.WriteFileAtomic(path, raw); err != nil {
		return err
	}
	return pruneBackups(outputDir, retention)
}

// Restore loads the latest snapshot into a new queue, walking the recovery
// ladder when the snapshot is corrupt: auto-repair, newest valid backup,
// then a fresh queue that keeps whatever processed IDs survive.
func Restore(outputDir string, opts Options) (*Queue, RecoveryReport, error) {
	path := filepath.Join(outputDir, SnapshotFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(opts), RecoveryReport{Source: "fresh"}, nil
		}
		return nil, RecoveryReport{}, err
	}

	var snapshot Snapshot
	parseErr := json.Unmarshal(raw, &snapshot)
	if parseErr == nil && snapshot.VerifyChecksum() && snapshot.validate() == nil {
		q := fromSnapshot(snapshot, opts)
		return q, RecoveryReport{Source: "snapshot", RecoveredItems: len(snapshot.QueueItems)}, nil
	}

	// Auto-repair: keep structurally valid items, coerce the rest.
	if parseErr == nil {
		repaired, dropped := repairSnapshot(snapshot)
		if repaired.validate() == nil && len(repaired.QueueItems)+len(repaired.ProcessedPageIDs) > 0 {
			q := fromSnapshot(repaired, opts)
			return q, RecoveryReport{
				Source:         "repair",
				DroppedItems:   dropped,
				RecoveredItems: len(repaired.QueueItems),
			}, nil
		}
	}

	// Backup recovery: newest first, first verifying backup wins.
	backups, err := listBackups(outputDir)
	if err == nil {
		for i := len(backups) - 1; i >= 0; i-- {
			backupRaw, readErr := os.ReadFile(backups[i])
			if readErr != nil {
				continue
			}
			var backupSnapshot Snapshot
			if json.Unmarshal(backupRaw, &backupSnapshot) != nil {
				continue
			}
			if !backupSnapshot.VerifyChecksum() || backupSnapshot.validate() != nil {
				continue
			}
			q := fromSnapshot(backupSnapshot, opts)
			return q, RecoveryReport{
				Source:         "backup",
				BackupUsed:     filepath.Base(backups[i]),
				RecoveredItems: len(backupSnapshot.QueueItems),
			}, nil
		}
	}

	// Fresh: best-effort processed set from whatever parsed.
	q := New(opts)
	recovered := 0
	if parseErr == nil {
		q.mu.Lock()
		for _, id := range snapshot.ProcessedPageIDs {
			if id != "" {
				q.processed[id] = struct{}{}
				recovered++
			}
		}
		q.mu.Unlock()
	}
	return q, RecoveryReport{
		Source:         "fresh",
		DroppedItems:   len(snapshot.QueueItems),
		RecoveredItems: recovered,
	}, nil
}

func fromSnapshot(snapshot Snapshot, opts Options) *Queue {
	if opts.SpaceKey == "" {
		opts.SpaceKey = snapshot.SpaceKey
	}
	q := New(opts)
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, len(snapshot.QueueItems))
	copy(items, snapshot.QueueItems)
	sortItems(items)

	for i := range items {
		item := items[i]
		// A snapshot taken mid-flight may hold processing items; they restart
		// as pending on restore.
		if item.Status == StatusProcessing {
			item.Status = StatusPending
		}
		stored := item
		q.items[item.PageID] = &stored
		if item.Status == StatusPending {
			q.order = append(q.order, item.PageID)
		}
	}
	for _, id := range snapshot.ProcessedPageIDs {
		q.processed[id] = struct{}{}
	}
	q.metrics.restore(snapshot.Metrics)
	return q
}

// repairSnapshot drops per-item-invalid entries and coerces missing fields.
func repairSnapshot(snapshot Snapshot) (Snapshot, int) {
	repaired := snapshot
	if repaired.Version <= 0 {
		repaired.Version = SnapshotVersion
	}

	kept := make([]Item, 0, len(snapshot.QueueItems))
	seen := map[string]struct{}{}
	dropped := 0
	for _, item := range snapshot.QueueItems {
		if item.PageID == "" {
			dropped++
			continue
		}
		if _, dup := seen[item.PageID]; dup {
			dropped++
			continue
		}
		seen[item.PageID] = struct{}{}
		switch item.Status {
		case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		default:
			item.Status = StatusPending
		}
		if item.SourceType == "" {
			item.SourceType = SourceReference
		}
		kept = append(kept, item)
	}
	repaired.QueueItems = kept

	processed := make([]string, 0, len(snapshot.ProcessedPageIDs))
	for _, id := range snapshot.ProcessedPageIDs {
		if id != "" {
			processed = append(processed, id)
		}
	}
	sort.Strings(processed)
	repaired.ProcessedPageIDs = processed

	active := 0
	for _, item := range kept {
		if item.Status == StatusPending || item.Status == StatusProcessing {
			active++
		}
	}
	repaired.Metrics.CurrentQueueSize = active
	repaired.Checksum = repaired.computeChecksum()
	return repaired, dropped
}

func listBackups(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}
	prefix := SnapshotFileName + ".backup."
	backups := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if _, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), prefix), 10, 64); err != nil {
			continue
		}
		backups = append(backups, filepath.Join(outputDir, entry.Name()))
	}
	sort.Strings(backups)
	return backups, nil
}

func pruneBackups(outputDir string, retention int) error {
	backups, err := listBackups(outputDir)
	if err != nil {
		return err
	}
	for len(backups) > retention {
		if err := os.Remove(backups[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		backups = backups[1:]
	}
	return nil
}

// RemoveBackups deletes all queue snapshot backups.
func RemoveBackups(outputDir string) error {
	backups, err := listBackups(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, backup := range backups {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

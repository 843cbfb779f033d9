package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func populatedQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(Options{SpaceKey: "TEST"})
	q.Add(Item{PageID: "100", SourceType: SourceInitial, DiscoveryTimestamp: 1})
	q.Add(Item{PageID: "101", SourceType: SourceReference, DiscoveryTimestamp: 2})
	q.Add(Item{PageID: "102", SourceType: SourceMacro, DiscoveryTimestamp: 3})
	q.Next()
	q.MarkProcessed("100")
	return q
}

func TestSnapshotChecksumRoundTrip(t *testing.T) {
	q := populatedQueue(t)
	snapshot := q.Snapshot()

	if !snapshot.VerifyChecksum() {
		t.Fatal("fresh snapshot fails checksum verification")
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.VerifyChecksum() {
		t.Fatal("decoded snapshot fails checksum verification")
	}

	rawAgain, err := json.Marshal(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(rawAgain) {
		t.Fatal("snapshot serialization not byte-stable")
	}
}

func TestSnapshotCanonicalOrdering(t *testing.T) {
	q := New(Options{SpaceKey: "TEST"})
	q.Add(Item{PageID: "300"})
	q.Add(Item{PageID: "100"})
	q.Add(Item{PageID: "200"})

	snapshot := q.Snapshot()
	for i := 1; i < len(snapshot.QueueItems); i++ {
		if snapshot.QueueItems[i-1].PageID > snapshot.QueueItems[i].PageID {
			t.Fatalf("queue items not sorted by page ID: %v", snapshot.QueueItems)
		}
	}
}

func TestPersistAndRestore(t *testing.T) {
	dir := t.TempDir()
	q := populatedQueue(t)

	if err := Persist(dir, q.Snapshot(), 3); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored, report, err := Restore(dir, Options{})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if report.Source != "snapshot" {
		t.Fatalf("source = %s", report.Source)
	}
	if restored.SpaceKey() != "TEST" {
		t.Fatalf("space = %s", restored.SpaceKey())
	}
	if !restored.IsProcessed("100") {
		t.Fatal("processed set lost")
	}

	// 101 and 102 restore as pending in discovery order.
	first, _ := restored.Next()
	second, _ := restored.Next()
	if first.PageID != "101" || second.PageID != "102" {
		t.Fatalf("restored order = %s, %s", first.PageID, second.PageID)
	}
}

func TestRestoreResetsProcessingToPending(t *testing.T) {
	dir := t.TempDir()
	q := New(Options{SpaceKey: "TEST"})
	q.Add(Item{PageID: "100"})
	q.Next() // leave it processing

	if err := Persist(dir, q.Snapshot(), 3); err != nil {
		t.Fatal(err)
	}
	restored, _, err := Restore(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	item, ok := restored.Next()
	if !ok || item.PageID != "100" {
		t.Fatalf("mid-flight item not pending after restore: %v/%v", item.PageID, ok)
	}
}

func TestRestoreMissingSnapshotIsFresh(t *testing.T) {
	q, report, err := Restore(t.TempDir(), Options{SpaceKey: "TEST"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Source != "fresh" || q.Size() != 0 {
		t.Fatalf("report = %+v, size = %d", report, q.Size())
	}
}

func TestRestoreRecoversFromBackup(t *testing.T) {
	dir := t.TempDir()
	q := populatedQueue(t)

	// Two persists: the first snapshot becomes a backup of the second.
	if err := Persist(dir, q.Snapshot(), 3); err != nil {
		t.Fatal(err)
	}
	if err := Persist(dir, q.Snapshot(), 3); err != nil {
		t.Fatal(err)
	}

	// Corrupt the live snapshot beyond repair.
	path := filepath.Join(dir, SnapshotFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	restored, report, err := Restore(dir, Options{})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if report.Source != "backup" {
		t.Fatalf("source = %s, want backup", report.Source)
	}
	if report.BackupUsed == "" || !strings.HasPrefix(report.BackupUsed, SnapshotFileName+".backup.") {
		t.Fatalf("backup used = %q", report.BackupUsed)
	}
	if !restored.IsProcessed("100") {
		t.Fatal("processed set lost in backup recovery")
	}
}

func TestRestoreRepairsStructurallyDamagedSnapshot(t *testing.T) {
	dir := t.TempDir()
	q := populatedQueue(t)
	snapshot := q.Snapshot()

	// Break one item and the checksum; parseable but invalid.
	snapshot.QueueItems = append(snapshot.QueueItems, Item{PageID: "", Status: "bogus"})
	snapshot.Checksum = "tampered"
	raw, _ := json.Marshal(snapshot)
	if err := os.WriteFile(filepath.Join(dir, SnapshotFileName), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	restored, report, err := Restore(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Source != "repair" {
		t.Fatalf("source = %s, want repair", report.Source)
	}
	if report.DroppedItems != 1 {
		t.Fatalf("dropped = %d", report.DroppedItems)
	}
	if !restored.IsProcessed("100") {
		t.Fatal("processed set lost in repair")
	}
}

func TestRestoreKeepsProcessedFromInvalidSnapshot(t *testing.T) {
	dir := t.TempDir()

	// Parseable snapshot whose items are all invalid and with no backups:
	// whatever recovery step wins must keep the processed IDs.
	snapshot := Snapshot{
		Version:          0, // invalid
		QueueItems:       []Item{{PageID: "", Status: "x"}},
		ProcessedPageIDs: []string{"100", "101"},
	}
	raw, _ := json.Marshal(snapshot)
	if err := os.WriteFile(filepath.Join(dir, SnapshotFileName), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	restored, report, err := Restore(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Source != "repair" && report.Source != "fresh" {
		t.Fatalf("source = %s", report.Source)
	}
	if !restored.IsProcessed("100") || !restored.IsProcessed("101") {
		t.Fatal("processed IDs not recovered")
	}
}

func TestPersistPrunesBackups(t *testing.T) {
	dir := t.TempDir()
	q := populatedQueue(t)

	for i := 0; i < 6; i++ {
		if err := Persist(dir, q.Snapshot(), 2); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	backups := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), SnapshotFileName+".backup.") {
			backups++
		}
	}
	if backups > 2 {
		t.Fatalf("backups = %d, want at most 2", backups)
	}
}

package journal

import (
	"path/filepath"
	"sort"
	"testing"
)

func TestRecordOverwritesStatus(t *testing.T) {
	j := New("TEST")
	j.Record("100", TypePage, StatusPending, "", "")
	j.Record("100", TypePage, StatusCompleted, "hello.md", "")

	entry, ok := j.Get("100")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Status != StatusCompleted || entry.Path != "hello.md" {
		t.Fatalf("entry = %+v", entry)
	}
	if j.Len() != 1 {
		t.Fatalf("len = %d", j.Len())
	}
}

func TestCompletedIDsFiltersByType(t *testing.T) {
	j := New("TEST")
	j.Record("100", TypePage, StatusCompleted, "a.md", "")
	j.Record("101", TypePage, StatusPending, "", "")
	j.Record("102", TypePage, StatusCompleted, "b.md", "")
	j.Record("att-1", TypeAttachment, StatusCompleted, "a/attachments/x.png", "")

	got := j.CompletedIDs(TypePage)
	sort.Strings(got)
	want := []string{"100", "102"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("completed = %v, want %v", got, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	j := New("TEST")
	j.Record("100", TypePage, StatusCompleted, "hello.md", "")
	j.Record("101", TypePage, StatusFailed, "", "boom")
	if err := j.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path, "TEST")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SpaceKey() != "TEST" || loaded.Len() != 2 {
		t.Fatalf("loaded = %s/%d", loaded.SpaceKey(), loaded.Len())
	}
	failed, _ := loaded.Get("101")
	if failed.Status != StatusFailed || failed.Error != "boom" {
		t.Fatalf("entry = %+v", failed)
	}
}

func TestLoadMissingFileReturnsEmptyJournal(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), FileName), "TEST")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if j.Len() != 0 || j.SpaceKey() != "TEST" {
		t.Fatalf("journal = %s/%d", j.SpaceKey(), j.Len())
	}
}

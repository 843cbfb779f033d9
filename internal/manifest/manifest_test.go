package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	m := New("TEST")
	m.Entries = []Entry{
		{ID: "1", Status: StatusExported, Path: "a.md", Hash: "h1"},
		{ID: "1", Status: StatusExported, Path: "b.md", Hash: "h2"},
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestValidateStatusInvariants(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		ok    bool
	}{
		{"exported with path and hash", Entry{ID: "1", Status: StatusExported, Path: "a.md", Hash: "h"}, true},
		{"exported missing hash", Entry{ID: "1", Status: StatusExported, Path: "a.md"}, false},
		{"denied clean", Entry{ID: "1", Status: StatusDenied}, true},
		{"denied with path", Entry{ID: "1", Status: StatusDenied, Path: "a.md"}, false},
		{"removed with hash", Entry{ID: "1", Status: StatusRemoved, Hash: "h"}, false},
		{"unknown status", Entry{ID: "1", Status: "weird"}, false},
	}
	for _, tc := range cases {
		m := New("TEST")
		m.Entries = []Entry{tc.entry}
		err := m.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	m := New("TEST")
	m.Upsert(Entry{ID: "100", Title: "Hello", Status: StatusExported, Path: "100-hello.md", Hash: "abc", Version: 2})
	m.Upsert(Entry{ID: "200", Title: "Denied", Status: StatusDenied})

	if err := Save(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SpaceKey != "TEST" || loaded.Version != FormatVersion {
		t.Fatalf("header = %+v", loaded)
	}
	if loaded.Len() != 2 {
		t.Fatalf("entries = %d", loaded.Len())
	}
	got, ok := loaded.Get("100")
	if !ok || got.Title != "Hello" || got.Hash != "abc" {
		t.Fatalf("entry 100 = %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestCompareDiffLaws(t *testing.T) {
	old := New("TEST")
	old.Entries = []Entry{
		{ID: "1", Status: StatusExported, Path: "a.md", Hash: "a"},
		{ID: "2", Status: StatusExported, Path: "b.md", Hash: "b"},
		{ID: "3", Status: StatusExported, Path: "c.md", Hash: "c"},
	}
	updated := New("TEST")
	updated.Entries = []Entry{
		{ID: "1", Status: StatusExported, Path: "a.md", Hash: "a"},
		{ID: "2", Status: StatusExported, Path: "b.md", Hash: "b2"},
		{ID: "4", Status: StatusExported, Path: "d.md", Hash: "d"},
	}

	diff := Compare(old, updated)
	if got := entryIDs(diff.Added); len(got) != 1 || got[0] != "4" {
		t.Errorf("added = %v", got)
	}
	if got := entryIDs(diff.Modified); len(got) != 1 || got[0] != "2" {
		t.Errorf("modified = %v", got)
	}
	if got := entryIDs(diff.Deleted); len(got) != 1 || got[0] != "3" {
		t.Errorf("deleted = %v", got)
	}
	if got := entryIDs(diff.Unchanged); len(got) != 1 || got[0] != "1" {
		t.Errorf("unchanged = %v", got)
	}

	// added ∪ unchanged ∪ modified covers the new manifest exactly.
	if got := len(diff.Added) + len(diff.Unchanged) + len(diff.Modified); got != updated.Len() {
		t.Errorf("new cover = %d, want %d", got, updated.Len())
	}
	// deleted ∪ unchanged ∪ modified covers the old manifest exactly.
	if got := len(diff.Deleted) + len(diff.Unchanged) + len(diff.Modified); got != old.Len() {
		t.Errorf("old cover = %d, want %d", got, old.Len())
	}
}

func TestCompareIdentity(t *testing.T) {
	m := New("TEST")
	m.Entries = []Entry{
		{ID: "1", Status: StatusExported, Path: "a.md", Hash: "a"},
		{ID: "2", Status: StatusExported, Path: "b.md", Hash: "b"},
	}
	diff := Compare(m, m)
	if len(diff.Added)+len(diff.Modified)+len(diff.Deleted) != 0 {
		t.Fatalf("diff(A, A) not empty: %+v", diff)
	}
	if len(diff.Unchanged) != m.Len() {
		t.Fatalf("unchanged = %d, want %d", len(diff.Unchanged), m.Len())
	}
}

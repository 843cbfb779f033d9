package fs

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Getting Started", "getting-started"},
		{"  Spaced   Out  ", "spaced-out"},
		{"Crème Brûlée", "creme-brulee"},
		{"What? Why! (And How)", "what-why-and-how"},
		{"a---b", "a-b"},
		{"UPPER case", "upper-case"},
		{"release/2024", "release2024"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.title); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestSlugifyTruncatesAtWordBoundary(t *testing.T) {
	title := strings.Repeat("word ", 40)
	got := SlugifyMax(title, 20)
	if len(got) > 20 {
		t.Fatalf("slug %q longer than 20", got)
	}
	if strings.HasSuffix(got, "-") {
		t.Fatalf("slug %q ends mid-boundary", got)
	}
	if !strings.HasPrefix(got, "word-word") {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestSlugifyWindowsReservedName(t *testing.T) {
	if got := Slugify("CON"); got != "con-page" {
		t.Fatalf("Slugify(CON) = %q, want con-page", got)
	}
}

func TestPathAllocatorCollisions(t *testing.T) {
	a := NewPathAllocator()

	first := a.Allocate("", "getting-started", "A", ".md")
	second := a.Allocate("", "getting-started", "B", ".md")
	third := a.Allocate("", "getting-started", "C", ".md")

	if first != "getting-started.md" {
		t.Errorf("first = %q", first)
	}
	if second != "getting-started-1.md" {
		t.Errorf("second = %q", second)
	}
	if third != "getting-started-2.md" {
		t.Errorf("third = %q", third)
	}

	// Same slug in a different directory does not collide.
	if got := a.Allocate("parent", "getting-started", "D", ".md"); got != "parent/getting-started.md" {
		t.Errorf("nested = %q", got)
	}
}

func TestPathAllocatorEmptySlugUsesPageID(t *testing.T) {
	a := NewPathAllocator()
	if got := a.Allocate("", "", "12345", ".md"); got != "page-12345.md" {
		t.Fatalf("got %q", got)
	}
}

func TestPathAllocatorReserve(t *testing.T) {
	a := NewPathAllocator()
	a.Reserve("hello.md")
	if got := a.Allocate("", "hello", "X", ".md"); got != "hello-1.md" {
		t.Fatalf("got %q, want hello-1.md", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"diagram.png", "diagram.png"},
		{"../../etc/passwd", "passwd"},
		{"my file (final).pdf", "my-file-final.pdf"},
		{"", "attachment"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

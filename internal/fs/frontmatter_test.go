package fs

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatAndParseMarkdownDocument(t *testing.T) {
	doc := MarkdownDocument{
		Frontmatter: Frontmatter{
			Title:    "Getting Started",
			ID:       "100",
			Version:  3,
			ParentID: "99",
		},
		Body: "# Heading\n\nBody text.\n",
	}

	raw, err := FormatMarkdownDocument(doc)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.HasPrefix(string(raw), "---\n") {
		t.Fatalf("missing frontmatter delimiter: %q", raw[:10])
	}

	parsed, err := ParseMarkdownDocument(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Frontmatter != doc.Frontmatter {
		t.Errorf("frontmatter = %+v, want %+v", parsed.Frontmatter, doc.Frontmatter)
	}
	if parsed.Body != doc.Body {
		t.Errorf("body = %q, want %q", parsed.Body, doc.Body)
	}
}

func TestFormatOmitsEmptyOptionalKeys(t *testing.T) {
	raw, err := FormatMarkdownDocument(MarkdownDocument{
		Frontmatter: Frontmatter{Title: "Hello", ID: "100"},
		Body:        "Hi\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "parentId") {
		t.Errorf("empty parentId serialized: %s", raw)
	}
	if strings.Contains(string(raw), "version") {
		t.Errorf("zero version serialized: %s", raw)
	}
}

func TestParseMarkdownDocumentMissingFrontmatter(t *testing.T) {
	_, err := ParseMarkdownDocument([]byte("no frontmatter here\n"))
	if !errors.Is(err, ErrFrontmatterMissing) {
		t.Fatalf("err = %v, want ErrFrontmatterMissing", err)
	}
}

func TestParseMarkdownDocumentUnclosedFrontmatter(t *testing.T) {
	_, err := ParseMarkdownDocument([]byte("---\ntitle: x\n"))
	if !errors.Is(err, ErrFrontmatterInvalid) {
		t.Fatalf("err = %v, want ErrFrontmatterInvalid", err)
	}
}

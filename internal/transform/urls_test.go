package transform

import "testing"

func TestExtractPageID(t *testing.T) {
	cases := []struct {
		href string
		want string
	}{
		{"https://wiki.example.com/pages/123", "123"},
		{"https://wiki.example.com/pages/123/Some+Title", "123"},
		{"/pages/123", "123"},
		{"/pages/123/Some-Title", "123"},
		{"https://wiki.example.com/pages/viewpage.action?pageId=456", "456"},
		{"/display/TEST/Title?focusedCommentId=9&pageId=789", "789"},
		{"https://wiki.example.com/display/TEST/Title", ""},
		{"https://example.org/unrelated", ""},
		{"", ""},
		{"#anchor", ""},
	}
	for _, tc := range cases {
		if got := ExtractPageID(tc.href); got != tc.want {
			t.Errorf("ExtractPageID(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}

func TestExtractPageIDIsExact(t *testing.T) {
	// /pages/12 must not match a link to page 123.
	if got := ExtractPageID("/pages/123"); got != "123" {
		t.Fatalf("ExtractPageID(/pages/123) = %q", got)
	}
	if got := ExtractPageID("/pages/12"); got != "12" {
		t.Fatalf("ExtractPageID(/pages/12) = %q", got)
	}
}

func TestExtractDisplayTarget(t *testing.T) {
	spaceKey, title, ok := ExtractDisplayTarget("https://wiki.example.com/display/TEST/Getting+Started")
	if !ok {
		t.Fatal("display URL not recognized")
	}
	if spaceKey != "TEST" || title != "Getting Started" {
		t.Fatalf("target = %q/%q", spaceKey, title)
	}

	spaceKey, title, ok = ExtractDisplayTarget("/display/OPS/Run%20Books")
	if !ok || spaceKey != "OPS" || title != "Run Books" {
		t.Fatalf("target = %q/%q ok=%v", spaceKey, title, ok)
	}

	if _, _, ok := ExtractDisplayTarget("/display/TEST"); ok {
		t.Fatal("display URL without a title should not resolve")
	}
	if _, _, ok := ExtractDisplayTarget("/pages/123"); ok {
		t.Fatal("non-display URL should not resolve")
	}
}

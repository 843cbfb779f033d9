package fs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultSlugMaxLength is the soft length cap applied to generated slugs.
const DefaultSlugMaxLength = 80

var (
	punctuationClass = regexp.MustCompile("[<>:\"/\\\\|?*'`!@#$%^&()\\[\\]{};,+=~\x00-\x1f]")
	whitespaceRun    = regexp.MustCompile(`\s+`)
	hyphenRun        = regexp.MustCompile(`-+`)
)

// Slugify converts a page title into a filesystem-safe slug: Unicode
// compatibility decomposition, lowercase, whitespace to hyphens, punctuation
// stripped, hyphen runs collapsed, truncated at a word boundary below max.
func Slugify(title string) string {
	return SlugifyMax(title, DefaultSlugMaxLength)
}

// SlugifyMax is Slugify with an explicit length cap.
func SlugifyMax(title string, maxLength int) string {
	s := norm.NFKD.String(strings.TrimSpace(title))
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = punctuationClass.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")

	if maxLength > 0 && len(s) > maxLength {
		s = truncateAtWordBoundary(s, maxLength)
	}
	if isWindowsReservedName(s) {
		s += "-page"
	}
	return s
}

// truncateAtWordBoundary cuts s below max, preferring the last hyphen so the
// result does not end mid-word.
func truncateAtWordBoundary(s string, max int) string {
	cut := s[:max]
	if idx := strings.LastIndex(cut, "-"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.Trim(cut, "-")
}

// PathAllocator resolves slug collisions within an export deterministically.
// The first occurrence of a slug keeps the base name; later collisions get
// -1, -2, ... suffixes in allocation order.
type PathAllocator struct {
	used map[string]struct{}
}

// NewPathAllocator returns an empty allocator.
func NewPathAllocator() *PathAllocator {
	return &PathAllocator{used: map[string]struct{}{}}
}

// Allocate reserves a unique relative path for the given directory, slug and
// extension. pageID is used only when the slug is empty.
func (a *PathAllocator) Allocate(dir, slug, pageID, ext string) string {
	if slug == "" {
		slug = "page-" + pageID
	}
	base := NormalizeRelPath(filepath.Join(dir, slug))

	candidate := base + ext
	if _, taken := a.used[candidate]; !taken {
		a.used[candidate] = struct{}{}
		return candidate
	}
	for i := 1; ; i++ {
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, taken := a.used[candidate]; !taken {
			a.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// Reserve marks an already-allocated path as taken so resumed exports do not
// hand the same path to a different page.
func (a *PathAllocator) Reserve(path string) {
	a.used[NormalizeRelPath(path)] = struct{}{}
}

// SanitizeFilename keeps an attachment filename safe as a single path segment.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = punctuationClass.ReplaceAllString(name, "-")
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = hyphenRun.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-. ")
	if name == "" {
		return "attachment"
	}
	if isWindowsReservedName(name) {
		name += "-file"
	}
	return name
}

func isWindowsReservedName(v string) bool {
	base := strings.ToUpper(strings.TrimSpace(v))
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	switch base {
	case "CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9":
		return true
	default:
		return false
	}
}

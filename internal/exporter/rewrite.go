package exporter

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rgonek/confluence-space-export/internal/fs"
	"github.com/rgonek/confluence-space-export/internal/manifest"
	"github.com/rgonek/confluence-space-export/internal/transform"
)

// RewriteResult summarizes the final link-rewriting pass.
type RewriteResult struct {
	FilesScanned   int
	LinksRewritten int
	BrokenLinks    int
}

// linkRewriter resolves Confluence URLs in emitted Markdown to POSIX-relative
// paths between the exported files. It runs once, after all pages are
// written.
type linkRewriter struct {
	baseURL  string
	spaceKey string
	// byPageID and byURL map to paths relative to the space directory.
	byPageID map[string]string
	byURL    map[string]string
	byTitle  map[string]string
}

func newLinkRewriter(baseURL, spaceKey string, m *manifest.Manifest) *linkRewriter {
	r := &linkRewriter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		spaceKey: spaceKey,
		byPageID: map[string]string{},
		byURL:    map[string]string{},
		byTitle:  map[string]string{},
	}
	for _, entry := range m.Entries {
		if entry.Status != manifest.StatusExported && entry.Status != manifest.StatusUnchanged {
			continue
		}
		r.byPageID[entry.ID] = entry.Path
		r.byTitle[strings.ToLower(entry.Title)] = entry.Path

		r.byURL[r.baseURL+"/pages/"+entry.ID] = entry.Path
		r.byURL["/pages/"+entry.ID] = entry.Path
		displayPath := "/display/" + url.PathEscape(spaceKey) + "/" + url.PathEscape(entry.Title)
		r.byURL[r.baseURL+displayPath] = entry.Path
		r.byURL[displayPath] = entry.Path
	}
	return r
}

// markdownLink matches [text](target); targets with nested parentheses are
// not produced by the transformer.
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^()\s]+)\)`)

// RewriteTree rewrites links in every exported Markdown file under spaceDir.
func (r *linkRewriter) RewriteTree(spaceDir string, m *manifest.Manifest) (RewriteResult, error) {
	result := RewriteResult{}
	for _, entry := range m.Entries {
		if entry.Status != manifest.StatusExported && entry.Status != manifest.StatusUnchanged {
			continue
		}
		filePath := filepath.Join(spaceDir, filepath.FromSlash(entry.Path))
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return result, fmt.Errorf("read %s for link rewriting: %w", entry.Path, err)
		}
		result.FilesScanned++

		rewritten, fileResult := r.rewriteContent(string(raw), entry.Path)
		result.LinksRewritten += fileResult.LinksRewritten
		result.BrokenLinks += fileResult.BrokenLinks
		if rewritten == string(raw) {
			continue
		}
		if err := fs.WriteFileAtomic(filePath, []byte(rewritten)); err != nil {
			return result, fmt.Errorf("rewrite %s: %w", entry.Path, err)
		}

		entry.Hash = fs.ContentHash([]byte(rewritten))
		m.Upsert(entry)
	}
	return result, nil
}

// rewriteContent rewrites one file's links. fromPath is the file's path
// relative to the space directory; fenced code regions are left untouched.
func (r *linkRewriter) rewriteContent(content, fromPath string) (string, RewriteResult) {
	result := RewriteResult{}
	fromDir := path.Dir(fromPath)

	lines := strings.Split(content, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = markdownLink.ReplaceAllStringFunc(line, func(link string) string {
			groups := markdownLink.FindStringSubmatch(link)
			text, target := groups[1], groups[2]

			resolved, candidate := r.resolve(target)
			if resolved == "" {
				if candidate {
					result.BrokenLinks++
				}
				return link
			}
			result.LinksRewritten++
			return fmt.Sprintf("[%s](%s)", text, relativePath(fromDir, resolved))
		})
	}
	return strings.Join(lines, "\n"), result
}

// resolve maps a link target to a space-relative path. candidate reports
// whether the target looked like a Confluence page link at all; only
// candidates count as broken when unresolved.
func (r *linkRewriter) resolve(target string) (resolved string, candidate bool) {
	switch {
	case target == "" || strings.HasPrefix(target, "#"):
		return "", false
	case strings.HasPrefix(target, "mailto:") || strings.HasPrefix(target, "ftp:"):
		return "", false
	}
	isAbsoluteHTTP := strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
	isSiteAbsolute := strings.HasPrefix(target, "/")
	if !isAbsoluteHTTP && !isSiteAbsolute {
		// Already-relative links are left alone.
		return "", false
	}
	if isAbsoluteHTTP && r.baseURL != "" && !strings.HasPrefix(target, r.baseURL) {
		return "", false
	}

	// Exact URL match first, with and without query/fragment.
	if p, ok := r.byURL[target]; ok {
		return p, true
	}
	trimmed := target
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if p, ok := r.byURL[trimmed]; ok {
		return p, true
	}

	// Page-id extraction covers /pages/<id>/<title> and pageId= forms.
	if id := transform.ExtractPageID(target); id != "" {
		if p, ok := r.byPageID[id]; ok {
			return p, true
		}
		return "", true
	}

	// Fuzzy: a /display/<space>/<title> link without a pageId resolves by
	// case-insensitive title within the exported space.
	if spaceKey, title, ok := transform.ExtractDisplayTarget(target); ok {
		if !strings.EqualFold(spaceKey, r.spaceKey) {
			return "", false
		}
		if p, ok := r.byTitle[strings.ToLower(title)]; ok {
			return p, true
		}
		return "", true
	}

	return "", false
}

// relativePath computes the POSIX-relative path from one space-relative
// directory to a space-relative file.
func relativePath(fromDir, target string) string {
	if fromDir == "." || fromDir == "" {
		return target
	}
	fromParts := strings.Split(fromDir, "/")
	targetParts := strings.Split(target, "/")

	common := 0
	for common < len(fromParts) && common < len(targetParts)-1 && fromParts[common] == targetParts[common] {
		common++
	}

	parts := []string{}
	for i := common; i < len(fromParts); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[common:]...)
	return path.Join(parts...)
}

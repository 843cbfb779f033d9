// Package search maintains a full-text index over an exported space so the
// tree can be queried offline. The index is derived data: it can always be
// rebuilt from the Markdown files listed in the manifest.
package search

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"

	"github.com/rgonek/confluence-space-export/internal/fs"
	"github.com/rgonek/confluence-space-export/internal/manifest"
)

// IndexDirName is the index directory at the output directory root.
const IndexDirName = ".search-index"

// Document is what gets indexed per exported page.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
	Body  string `json:"body"`
}

// Hit is one search result.
type Hit struct {
	ID    string
	Title string
	Path  string
	Score float64
}

// Build rebuilds the index from scratch for every exported or unchanged
// manifest entry. Returns the number of pages indexed.
func Build(outputDir, spaceDir string, m *manifest.Manifest) (int, error) {
	indexPath := filepath.Join(outputDir, IndexDirName)
	if err := os.RemoveAll(indexPath); err != nil {
		return 0, fmt.Errorf("clear search index: %w", err)
	}

	mapping := bleve.NewIndexMapping()
	index, err := bleve.New(indexPath, mapping)
	if err != nil {
		return 0, fmt.Errorf("create search index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	indexed := 0
	for _, entry := range m.Entries {
		if entry.Status != manifest.StatusExported && entry.Status != manifest.StatusUnchanged {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(spaceDir, filepath.FromSlash(entry.Path)))
		if err != nil {
			return indexed, fmt.Errorf("read %s for indexing: %w", entry.Path, err)
		}
		doc, err := fs.ParseMarkdownDocument(raw)
		if err != nil {
			return indexed, fmt.Errorf("parse %s for indexing: %w", entry.Path, err)
		}

		page := Document{
			ID:    entry.ID,
			Title: doc.Frontmatter.Title,
			Path:  entry.Path,
			Body:  plainText([]byte(doc.Body)),
		}
		err = batch.Index(entry.ID, map[string]interface{}{
			"id":    page.ID,
			"title": page.Title,
			"path":  page.Path,
			"body":  page.Body,
		})
		if err != nil {
			return indexed, fmt.Errorf("index page %s: %w", entry.ID, err)
		}
		indexed++
	}
	if err := index.Batch(batch); err != nil {
		return indexed, fmt.Errorf("flush search index: %w", err)
	}
	return indexed, nil
}

// Query runs a match query against the index and returns up to limit hits.
func Query(outputDir, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	index, err := bleve.Open(filepath.Join(outputDir, IndexDirName))
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	defer index.Close()

	matchQuery := bleve.NewMatchQuery(query)
	request := bleve.NewSearchRequestOptions(matchQuery, limit, 0, false)
	request.Fields = []string{"title", "path"}

	result, err := index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		h := Hit{ID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			h.Title = title
		}
		if path, ok := hit.Fields["path"].(string); ok {
			h.Path = path
		}
		hits = append(hits, h)
	}
	return hits, nil
}

package exporter

import (
	"path"
	"strings"

	"github.com/rgonek/confluence-space-export/internal/confluence"
	"github.com/rgonek/confluence-space-export/internal/fs"
)

// pathPlanner assigns each page a hierarchy-preserving relative path inside
// the space directory. Root pages carry an id-prefixed basename so exports
// rooted at different pages cannot collide; descendants use the bare title
// slug, nested under their parent's path base.
type pathPlanner struct {
	rootID    string
	allocator *fs.PathAllocator
	// bases maps pageID to its allocated path base (no extension).
	bases map[string]string
}

func newPathPlanner(rootID string) *pathPlanner {
	return &pathPlanner{
		rootID:    rootID,
		allocator: fs.NewPathAllocator(),
		bases:     map[string]string{},
	}
}

// planFor allocates the Markdown path for a page, relative to the space
// directory. Calling it twice for the same page returns the first allocation.
func (p *pathPlanner) planFor(page confluence.Page) string {
	if base, ok := p.bases[page.ID]; ok {
		return base + ".md"
	}

	slug := fs.Slugify(page.Title)
	dir := p.dirFor(page)

	isRoot := page.ID == p.rootID || len(page.Ancestors) == 0
	if isRoot && slug != "" {
		slug = page.ID + "-" + slug
	}

	allocated := p.allocator.Allocate(dir, slug, page.ID, ".md")
	p.bases[page.ID] = strings.TrimSuffix(allocated, ".md")
	return allocated
}

// reserve seeds the planner with a path allocated by a previous run.
func (p *pathPlanner) reserve(pageID, relPath string) {
	if pageID == "" || relPath == "" {
		return
	}
	p.allocator.Reserve(relPath)
	p.bases[pageID] = strings.TrimSuffix(relPath, ".md")
}

// dirFor derives the directory a page nests under. The deepest ancestor with
// an allocated base anchors the path; any ancestors below it that have not
// been processed yet contribute their bare title slugs.
func (p *pathPlanner) dirFor(page confluence.Page) string {
	if page.ID == p.rootID || len(page.Ancestors) == 0 {
		return ""
	}

	ancestors := page.Ancestors
	if p.rootID != "" {
		for i, a := range ancestors {
			if a.ID == p.rootID {
				ancestors = ancestors[i:]
				break
			}
		}
	}

	dir := ""
	rest := ancestors
	for i := len(ancestors) - 1; i >= 0; i-- {
		if base, ok := p.bases[ancestors[i].ID]; ok {
			dir = base
			rest = ancestors[i+1:]
			break
		}
	}

	parts := []string{}
	for _, a := range rest {
		if slug := fs.Slugify(a.Title); slug != "" {
			parts = append(parts, slug)
		}
	}
	return path.Join(dir, path.Join(parts...))
}

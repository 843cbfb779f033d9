// Package transform converts Confluence storage-format XHTML into Markdown
// and reports the links, attachments, users, and page references discovered
// along the way. Transformation is pure: the same page and context always
// produce the same result.
package transform

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rgonek/confluence-space-export/internal/confluence"
	"github.com/rgonek/confluence-space-export/internal/fs"
)

// Context carries the export-scoped inputs the transformer needs to emit
// stable URLs and attachment paths.
type Context struct {
	BaseURL  string
	SpaceKey string
	// PageSlug is the page's path base without the .md extension; attachment
	// links are emitted relative to the page file as <slug>/attachments/<name>.
	PageSlug string
}

// Link is an inter-page link discovered in the body.
type Link struct {
	Text           string
	Href           string
	TargetPageID   string
	TargetTitle    string
	TargetSpaceKey string
}

// AttachmentRef is an attachment referenced by the body.
type AttachmentRef struct {
	Filename string
	PageID   string
}

// UserRef is a user mention discovered in the body. Placeholder is the exact
// Markdown fragment emitted for the mention; a later resolution pass may
// replace it.
type UserRef struct {
	UserKey     string
	Username    string
	Placeholder string
}

// Macro expansion handling values.
const (
	MacroExpanded    = "expanded"
	MacroPassthrough = "passthrough"
	MacroRemoved     = "removed"
)

// MacroExpansion records how one structured macro was handled.
type MacroExpansion struct {
	Type     string
	Handling string
}

// Result is the transformer output.
type Result struct {
	Content           string
	FrontMatter       fs.Frontmatter
	Links             []Link
	Attachments       []AttachmentRef
	Users             []UserRef
	MacroExpansions   []MacroExpansion
	DiscoveredPageIDs []string
}

// Transform converts a page's storage-format body to Markdown.
func Transform(page confluence.Page, ctx Context) (Result, error) {
	nodes, err := parseStorageFragment(page.BodyStorage)
	if err != nil {
		return Result{}, fmt.Errorf("parse storage format for page %s: %w", page.ID, err)
	}

	r := newRenderer(page, ctx)
	for _, node := range nodes {
		r.walk(node)
	}

	content := r.finish()
	result := Result{
		Content: content,
		FrontMatter: fs.Frontmatter{
			Title:    page.Title,
			ID:       page.ID,
			Version:  page.Version,
			ParentID: page.ParentID,
		},
		Links:             r.links,
		Attachments:       r.attachments,
		Users:             r.users,
		MacroExpansions:   r.macroExpansions,
		DiscoveredPageIDs: r.discoveredPageIDs(),
	}
	return result, nil
}

// parseStorageFragment parses storage-format XHTML as a body fragment. The
// ac:/ri: namespaced elements survive as elements with prefixed tag names.
func parseStorageFragment(body string) ([]*html.Node, error) {
	container := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	return html.ParseFragment(strings.NewReader(body), container)
}

// nodeAttr returns the value of an attribute by its full (possibly prefixed)
// name.
func nodeAttr(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// cdataText unwraps a CDATA section that the HTML parser preserved as a
// comment node. Storage format wraps code macro bodies this way.
func cdataText(n *html.Node) (string, bool) {
	if n.Type != html.CommentNode {
		return "", false
	}
	data := n.Data
	if strings.HasPrefix(data, "[CDATA[") && strings.HasSuffix(data, "]]") {
		return data[len("[CDATA[") : len(data)-len("]]")], true
	}
	return "", false
}

// findElement returns the first descendant element whose tag matches one of
// the given names, depth-first.
func findElement(n *html.Node, names ...string) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			for _, name := range names {
				if child.Data == name {
					return child
				}
			}
		}
		if found := findElement(child, names...); found != nil {
			return found
		}
	}
	return nil
}

// textContent collects all text beneath a node, unwrapping CDATA comments.
func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		if text, ok := cdataText(node); ok {
			b.WriteString(text)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)
	return b.String()
}

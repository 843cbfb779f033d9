package transform

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Discovery request kinds.
const (
	DiscoverChildren = "children"
	DiscoverLabel    = "label"
)

// DiscoveryRequest asks the orchestrator to expand a macro into concrete
// pages: either the children of a page or the pages carrying a label.
type DiscoveryRequest struct {
	Kind   string
	PageID string // page whose children to list, for DiscoverChildren
	Title  string // set instead of PageID when the macro names the parent by title
	Label  string // label to search, for DiscoverLabel
}

// Discover scans a storage-format body for macros whose page sets are only
// known server-side. The transformer renders a marker in place; the requests
// returned here tell the orchestrator which pages to fetch and enqueue.
func Discover(bodyStorage, pageID string) ([]DiscoveryRequest, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyStorage))
	if err != nil {
		return nil, fmt.Errorf("parse body for discovery: %w", err)
	}

	requests := []DiscoveryRequest{}
	seen := map[string]bool{}
	add := func(req DiscoveryRequest) {
		key := req.Kind + "\x00" + req.PageID + "\x00" + req.Title + "\x00" + req.Label
		if seen[key] {
			return
		}
		seen[key] = true
		requests = append(requests, req)
	}

	doc.Find(`ac\:structured-macro`).Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("ac:name")
		switch name {
		case "children", "children-display":
			parent := pageID
			// An explicit page parameter points the macro at another page,
			// addressed by title. The orchestrator resolves the title.
			sel.Find(`ac\:parameter`).Each(func(_ int, param *goquery.Selection) {
				if pname, _ := param.Attr("ac:name"); pname != "page" {
					return
				}
				if title, ok := param.Find(`ri\:page`).Attr("ri:content-title"); ok && title != "" {
					parent = ""
					add(DiscoveryRequest{Kind: DiscoverChildren, Title: title})
				}
			})
			if parent != "" {
				add(DiscoveryRequest{Kind: DiscoverChildren, PageID: parent})
			}
		case "content-by-label":
			sel.Find(`ac\:parameter`).Each(func(_ int, param *goquery.Selection) {
				pname, _ := param.Attr("ac:name")
				if pname != "labels" && pname != "cql" {
					return
				}
				for _, label := range strings.Split(param.Text(), ",") {
					label = strings.TrimSpace(label)
					label = strings.TrimPrefix(label, "+")
					if label != "" {
						add(DiscoveryRequest{Kind: DiscoverLabel, Label: label})
					}
				}
			})
		}
	})

	return requests, nil
}

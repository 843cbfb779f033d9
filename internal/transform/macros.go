package transform

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// supportedMacros lists the macros the renderer expands into Markdown.
var supportedMacros = map[string]bool{
	"code":             true,
	"info":             true,
	"note":             true,
	"warning":          true,
	"tip":              true,
	"panel":            true,
	"toc":              true,
	"children":         true,
	"children-display": true,
	"content-by-label": true,
	"expand":           true,
	"status":           true,
	"noformat":         true,
}

// admonitionLabels maps macro names to the bold label rendered at the top of
// the quoted block.
var admonitionLabels = map[string]string{
	"info":    "Info",
	"note":    "Note",
	"warning": "Warning",
	"tip":     "Tip",
	"panel":   "Panel",
}

func (r *renderer) renderMacro(n *html.Node) {
	name := nodeAttr(n, "ac:name")
	if name == "" {
		name = "unknown"
	}

	params := map[string]string{}
	var richBody, plainBody *html.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		switch child.Data {
		case "ac:parameter":
			params[nodeAttr(child, "ac:name")] = strings.TrimSpace(textContent(child))
		case "ac:rich-text-body":
			richBody = child
		case "ac:plain-text-body":
			plainBody = child
		}
	}

	switch name {
	case "code", "noformat":
		body := ""
		if plainBody != nil {
			body = textContent(plainBody)
		} else if richBody != nil {
			body = textContent(richBody)
		}
		r.addBlock(fence(body, params["language"]))
		r.recordMacro(name, MacroExpanded)

	case "info", "note", "warning", "tip", "panel":
		label := admonitionLabels[name]
		if title := params["title"]; title != "" {
			label = title
		}
		body := ""
		if richBody != nil {
			body = r.renderNested(richBody)
		}
		block := "**" + label + "**"
		if body != "" {
			block += "\n\n" + strings.TrimRight(body, "\n")
		}
		r.addBlock(quoteBlock(block))
		r.recordMacro(name, MacroExpanded)

	case "toc":
		r.addBlock("[[_TOC_]]")
		r.recordMacro(name, MacroExpanded)

	case "children", "children-display":
		// The page list is not known at transform time; the orchestrator
		// discovers the children separately. Emit a stable marker.
		r.addBlock(fmt.Sprintf("*Child pages of %s*", r.page.Title))
		r.recordMacro(name, MacroExpanded)

	case "content-by-label":
		labels := params["labels"]
		if labels == "" {
			labels = params["cql"]
		}
		if labels != "" {
			r.addBlock(fmt.Sprintf("*Pages labeled: %s*", labels))
		}
		r.recordMacro(name, MacroExpanded)

	case "expand":
		title := params["title"]
		if title == "" {
			title = "Details"
		}
		body := ""
		if richBody != nil {
			body = r.renderNested(richBody)
		}
		r.addBlock("**" + title + "**\n\n" + strings.TrimRight(body, "\n"))
		r.recordMacro(name, MacroExpanded)

	case "status":
		title := params["title"]
		if title != "" {
			r.pending.WriteString("**" + strings.ToUpper(title) + "**")
		}
		r.recordMacro(name, MacroExpanded)

	default:
		if richBody != nil {
			// Unsupported container macros keep their body content.
			if body := r.renderNested(richBody); strings.TrimSpace(body) != "" {
				r.addBlock(strings.TrimRight(body, "\n"))
			}
			r.recordMacro(name, MacroPassthrough)
			return
		}
		r.recordMacro(name, MacroRemoved)
	}
}

// inlineMacro handles a structured macro appearing inside a paragraph. Only
// status renders inline; anything else is recorded and dropped from the flow.
func (r *renderer) inlineMacro(n *html.Node) string {
	name := nodeAttr(n, "ac:name")
	if name == "status" {
		title := ""
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.Data == "ac:parameter" && nodeAttr(child, "ac:name") == "title" {
				title = strings.TrimSpace(textContent(child))
			}
		}
		r.recordMacro(name, MacroExpanded)
		if title == "" {
			return ""
		}
		return "**" + strings.ToUpper(title) + "**"
	}
	if name == "" {
		name = "unknown"
	}
	r.recordMacro(name, MacroRemoved)
	return ""
}

func (r *renderer) recordMacro(name, handling string) {
	r.macroExpansions = append(r.macroExpansions, MacroExpansion{Type: name, Handling: handling})
}

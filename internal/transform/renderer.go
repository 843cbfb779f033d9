package transform

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/rgonek/confluence-space-export/internal/confluence"
	"github.com/rgonek/confluence-space-export/internal/fs"
)

// renderer walks a parsed storage-format tree and accumulates Markdown
// blocks plus the references discovered along the way.
type renderer struct {
	page confluence.Page
	ctx  Context

	blocks  []string
	pending strings.Builder

	links           []Link
	attachments     []AttachmentRef
	users           []UserRef
	macroExpansions []MacroExpansion
	discovered      map[string]struct{}
	discoveredOrder []string
}

func newRenderer(page confluence.Page, ctx Context) *renderer {
	return &renderer{
		page:       page,
		ctx:        ctx,
		discovered: map[string]struct{}{},
	}
}

func (r *renderer) finish() string {
	r.flushPending()
	content := strings.Join(r.blocks, "\n\n")
	content = strings.TrimRight(content, "\n")
	if content != "" {
		content += "\n"
	}
	return content
}

func (r *renderer) discoveredPageIDs() []string {
	return r.discoveredOrder
}

func (r *renderer) discover(pageID string) {
	if pageID == "" || pageID == r.page.ID {
		return
	}
	if _, seen := r.discovered[pageID]; seen {
		return
	}
	r.discovered[pageID] = struct{}{}
	r.discoveredOrder = append(r.discoveredOrder, pageID)
}

func (r *renderer) addBlock(block string) {
	r.flushPending()
	block = strings.TrimRight(block, "\n")
	if strings.TrimSpace(block) == "" {
		return
	}
	r.blocks = append(r.blocks, block)
}

// flushPending turns loose inline content at block level into a paragraph.
func (r *renderer) flushPending() {
	text := strings.TrimSpace(r.pending.String())
	r.pending.Reset()
	if text != "" {
		r.blocks = append(r.blocks, text)
	}
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.pending.WriteString(inlineText(n.Data))
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
	default:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			r.walk(child)
		}
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		text := strings.TrimSpace(r.inlineChildren(n))
		if text != "" {
			r.addBlock(strings.Repeat("#", level) + " " + text)
		}
	case "p":
		text := strings.TrimSpace(r.inlineChildren(n))
		if text != "" {
			r.addBlock(text)
		}
	case "ul", "ol":
		r.addBlock(r.renderList(n, 0))
	case "pre":
		r.addBlock(fence(textContent(n), ""))
	case "table":
		r.addBlock(r.renderTable(n))
	case "blockquote":
		r.addBlock(quoteBlock(r.renderNested(n)))
	case "hr":
		r.addBlock("---")
	case "ac:structured-macro", "ac:macro":
		r.renderMacro(n)
	case "ac:layout", "ac:layout-section", "ac:layout-cell", "div", "section", "article", "body":
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			r.walk(child)
		}
	case "ac:image":
		r.pending.WriteString(r.renderImage(n))
	case "ac:link":
		r.pending.WriteString(r.renderAcLink(n))
	case "br":
		r.pending.WriteString("\n")
	default:
		// Unknown elements contribute their inline content in place.
		r.pending.WriteString(r.inlineChildren(n))
	}
}

// renderNested renders an element's children into standalone Markdown, used
// for block quotes and macro bodies.
func (r *renderer) renderNested(n *html.Node) string {
	nested := &renderer{
		page:       r.page,
		ctx:        r.ctx,
		discovered: r.discovered,
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		nested.walk(child)
	}
	out := nested.finish()

	r.links = append(r.links, nested.links...)
	r.attachments = append(r.attachments, nested.attachments...)
	r.users = append(r.users, nested.users...)
	r.macroExpansions = append(r.macroExpansions, nested.macroExpansions...)
	r.discoveredOrder = append(r.discoveredOrder, nested.discoveredOrder...)
	return out
}

func (r *renderer) inlineChildren(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(r.inline(child))
	}
	return b.String()
}

func (r *renderer) inline(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return inlineText(n.Data)
	case html.ElementNode:
	default:
		return ""
	}

	switch n.Data {
	case "strong", "b":
		inner := strings.TrimSpace(r.inlineChildren(n))
		if inner == "" {
			return ""
		}
		return "**" + inner + "**"
	case "em", "i":
		inner := strings.TrimSpace(r.inlineChildren(n))
		if inner == "" {
			return ""
		}
		return "*" + inner + "*"
	case "s", "del", "strike":
		inner := strings.TrimSpace(r.inlineChildren(n))
		if inner == "" {
			return ""
		}
		return "~~" + inner + "~~"
	case "code":
		inner := textContent(n)
		if inner == "" {
			return ""
		}
		return "`" + inner + "`"
	case "a":
		return r.renderAnchor(n)
	case "img":
		alt := nodeAttr(n, "alt")
		src := nodeAttr(n, "src")
		if src == "" {
			return ""
		}
		return fmt.Sprintf("![%s](%s)", alt, src)
	case "br":
		return "\n"
	case "ac:link":
		return r.renderAcLink(n)
	case "ac:image":
		return r.renderImage(n)
	case "ac:emoticon":
		if name := nodeAttr(n, "ac:name"); name != "" {
			return ":" + name + ":"
		}
		return ""
	case "ac:structured-macro", "ac:macro":
		return r.inlineMacro(n)
	case "time":
		if dt := nodeAttr(n, "datetime"); dt != "" {
			return dt
		}
		return r.inlineChildren(n)
	default:
		return r.inlineChildren(n)
	}
}

// renderAnchor renders a plain <a> element and records it for the final
// link-rewriting pass when it targets a Confluence page.
func (r *renderer) renderAnchor(n *html.Node) string {
	href := nodeAttr(n, "href")
	text := strings.TrimSpace(r.inlineChildren(n))
	if href == "" {
		return text
	}
	if text == "" {
		text = href
	}

	link := Link{Text: text, Href: href}
	if pageID := ExtractPageID(href); pageID != "" {
		link.TargetPageID = pageID
		r.discover(pageID)
	}
	r.links = append(r.links, link)
	return fmt.Sprintf("[%s](%s)", text, href)
}

// renderAcLink renders <ac:link> with its ri:page / ri:user / ri:attachment
// resource identifier. The HTML parser nests self-closed ri:* elements around
// their following siblings, so both lookups search descendants.
func (r *renderer) renderAcLink(n *html.Node) string {
	resource := findElement(n, "ri:page", "ri:user", "ri:attachment", "ri:space", "ri:url")

	linkText := ""
	if body := findElement(n, "ac:plain-text-link-body"); body != nil {
		linkText = strings.TrimSpace(textContent(body))
	} else if body := findElement(n, "ac:link-body"); body != nil {
		linkText = strings.TrimSpace(r.inlineChildren(body))
	}
	if resource == nil {
		if linkText != "" {
			return linkText
		}
		return strings.TrimSpace(textContent(n))
	}

	switch resource.Data {
	case "ri:page":
		title := nodeAttr(resource, "ri:content-title")
		spaceKey := nodeAttr(resource, "ri:space-key")
		if spaceKey == "" {
			spaceKey = r.ctx.SpaceKey
		}
		contentID := nodeAttr(resource, "ri:content-id")
		if linkText == "" {
			linkText = title
		}

		href := ""
		if contentID != "" {
			href = r.ctx.BaseURL + "/pages/" + contentID
			r.discover(contentID)
		} else {
			href = r.ctx.BaseURL + "/display/" + url.PathEscape(spaceKey) + "/" + url.PathEscape(title)
		}
		r.links = append(r.links, Link{
			Text:           linkText,
			Href:           href,
			TargetPageID:   contentID,
			TargetTitle:    title,
			TargetSpaceKey: spaceKey,
		})
		return fmt.Sprintf("[%s](%s)", linkText, href)

	case "ri:user":
		userKey := nodeAttr(resource, "ri:userkey")
		username := nodeAttr(resource, "ri:username")
		handle := username
		if handle == "" {
			handle = userKey
		}
		if handle == "" {
			return linkText
		}
		if linkText == "" {
			linkText = "~" + handle
		}
		placeholder := fmt.Sprintf("[%s](%s/display/~%s)", linkText, r.ctx.BaseURL, url.PathEscape(handle))
		r.users = append(r.users, UserRef{
			UserKey:     userKey,
			Username:    username,
			Placeholder: placeholder,
		})
		return placeholder

	case "ri:attachment":
		filename := nodeAttr(resource, "ri:filename")
		if filename == "" {
			return linkText
		}
		if linkText == "" {
			linkText = filename
		}
		r.attachments = append(r.attachments, AttachmentRef{Filename: filename, PageID: r.page.ID})
		return fmt.Sprintf("[%s](%s)", linkText, r.attachmentHref(filename))

	case "ri:url":
		href := nodeAttr(resource, "ri:value")
		if href == "" {
			return linkText
		}
		if linkText == "" {
			linkText = href
		}
		return fmt.Sprintf("[%s](%s)", linkText, href)

	default:
		return linkText
	}
}

// renderImage renders <ac:image> wrapping ri:attachment or ri:url.
func (r *renderer) renderImage(n *html.Node) string {
	alt := nodeAttr(n, "ac:alt")
	if att := findElement(n, "ri:attachment"); att != nil {
		filename := nodeAttr(att, "ri:filename")
		if filename == "" {
			return ""
		}
		r.attachments = append(r.attachments, AttachmentRef{Filename: filename, PageID: r.page.ID})
		if alt == "" {
			alt = filename
		}
		return fmt.Sprintf("![%s](%s)", alt, r.attachmentHref(filename))
	}
	if ext := findElement(n, "ri:url"); ext != nil {
		value := nodeAttr(ext, "ri:value")
		if value == "" {
			return ""
		}
		return fmt.Sprintf("![%s](%s)", alt, value)
	}
	return ""
}

func (r *renderer) attachmentHref(filename string) string {
	base := r.ctx.PageSlug
	safe := fs.SanitizeFilename(filename)
	if base == "" {
		return "attachments/" + safe
	}
	return base + "/attachments/" + safe
}

func (r *renderer) renderList(n *html.Node, depth int) string {
	ordered := n.Data == "ol"
	indent := strings.Repeat("    ", depth)
	lines := []string{}
	index := 0

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || child.Data != "li" {
			continue
		}
		index++

		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", index)
		}

		var inlineParts strings.Builder
		nestedLists := []string{}
		for grand := child.FirstChild; grand != nil; grand = grand.NextSibling {
			if grand.Type == html.ElementNode && (grand.Data == "ul" || grand.Data == "ol") {
				nestedLists = append(nestedLists, r.renderList(grand, depth+1))
				continue
			}
			if grand.Type == html.ElementNode && grand.Data == "p" {
				if inlineParts.Len() > 0 {
					inlineParts.WriteString(" ")
				}
				inlineParts.WriteString(strings.TrimSpace(r.inlineChildren(grand)))
				continue
			}
			inlineParts.WriteString(r.inline(grand))
		}

		text := strings.TrimSpace(inlineParts.String())
		lines = append(lines, indent+marker+text)
		lines = append(lines, nestedLists...)
	}
	return strings.Join(lines, "\n")
}

func (r *renderer) renderTable(n *html.Node) string {
	rows := [][]string{}
	headerIsBold := false

	var visitRows func(*html.Node)
	visitRows = func(node *html.Node) {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			switch child.Data {
			case "thead", "tbody", "tfoot":
				visitRows(child)
			case "tr":
				cells := []string{}
				isHeader := false
				for cell := child.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode {
						continue
					}
					if cell.Data == "th" {
						isHeader = true
					}
					if cell.Data == "th" || cell.Data == "td" {
						text := strings.TrimSpace(r.inlineChildren(cell))
						text = strings.ReplaceAll(text, "\n", " ")
						text = strings.ReplaceAll(text, "|", "\\|")
						cells = append(cells, text)
					}
				}
				if len(cells) > 0 {
					if len(rows) == 0 && isHeader {
						headerIsBold = true
					}
					rows = append(rows, cells)
				}
			}
		}
	}
	visitRows(n)

	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	pad := func(row []string) []string {
		for len(row) < width {
			row = append(row, "")
		}
		return row
	}

	lines := []string{}
	header := pad(rows[0])
	body := rows[1:]
	if !headerIsBold {
		// Tables without a header row still need a separator; emit an empty
		// header so the pipe table stays valid.
		body = rows
		header = pad(make([]string, width))
	}

	lines = append(lines, "| "+strings.Join(header, " | ")+" |")
	separators := make([]string, width)
	for i := range separators {
		separators[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(separators, " | ")+" |")
	for _, row := range body {
		lines = append(lines, "| "+strings.Join(pad(row), " | ")+" |")
	}
	return strings.Join(lines, "\n")
}

// inlineText normalizes a text node for inline Markdown: entity decoding has
// already happened in the parser; non-breaking spaces become plain spaces and
// newlines collapse.
func inlineText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func fence(code, language string) string {
	code = strings.TrimRight(code, "\n")
	marker := "```"
	for strings.Contains(code, marker) {
		marker += "`"
	}
	return marker + language + "\n" + code + "\n" + marker
}

func quoteBlock(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

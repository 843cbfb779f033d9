package transform

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	pagesPathPattern = regexp.MustCompile(`/pages/(\d+)(?:/|$)`)
	viewPagePattern  = regexp.MustCompile(`viewpage\.action`)
)

// ExtractPageID pulls a numeric page ID out of a Confluence page URL. It
// recognizes /pages/<id>, /pages/<id>/<title> and viewpage.action?pageId=<id>
// forms; other URLs return "".
func ExtractPageID(href string) string {
	if href == "" {
		return ""
	}
	if m := pagesPathPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if viewPagePattern.MatchString(href) || strings.Contains(href, "pageId=") {
		if u, err := url.Parse(href); err == nil {
			if id := u.Query().Get("pageId"); isDigits(id) {
				return id
			}
		}
	}
	return ""
}

// ExtractDisplayTarget pulls the space key and page title out of a
// /display/<spaceKey>/<title> URL. Titles come back percent-decoded with
// plus signs restored to spaces.
func ExtractDisplayTarget(href string) (spaceKey, title string, ok bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part != "display" || i+2 >= len(parts)+1 {
			continue
		}
		rest := parts[i+1:]
		if len(rest) < 2 {
			return "", "", false
		}
		title := strings.Join(rest[1:], "/")
		if decoded, err := url.PathUnescape(title); err == nil {
			title = decoded
		}
		title = strings.ReplaceAll(title, "+", " ")
		return rest[0], title, true
	}
	return "", "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

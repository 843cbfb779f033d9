package cleanup

import (
	"regexp"
	"strings"
)

var (
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
	excessBlanks   = regexp.MustCompile(`\n{3,}`)
	headingCrowded = regexp.MustCompile(`(?m)^(#{1,6})([^#\s])`)
	bareNbsp       = regexp.MustCompile(`\x{00a0}`)
)

// DefaultRules returns the cosmetic rules every export applies.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "trim-trailing-whitespace",
			Version:  "1.0",
			Priority: 10,
			Process: func(content string, _ Context) Result {
				out := trailingSpace.ReplaceAllString(content, "\n")
				return Result{Content: out, Changed: out != content}
			},
		},
		{
			Name:     "collapse-blank-lines",
			Version:  "1.0",
			Priority: 20,
			Process: func(content string, _ Context) Result {
				out := excessBlanks.ReplaceAllString(content, "\n\n")
				return Result{Content: out, Changed: out != content}
			},
		},
		{
			Name:     "heading-spacing",
			Version:  "1.0",
			Priority: 30,
			Process: func(content string, _ Context) Result {
				out := headingCrowded.ReplaceAllString(content, "$1 $2")
				return Result{Content: out, Changed: out != content}
			},
		},
		{
			Name:     "replace-nbsp",
			Version:  "1.0",
			Priority: 40,
			Process: func(content string, _ Context) Result {
				out := bareNbsp.ReplaceAllString(content, " ")
				return Result{Content: out, Changed: out != content}
			},
		},
		{
			Name:     "final-newline",
			Version:  "1.0",
			Priority: 90,
			Process: func(content string, _ Context) Result {
				out := strings.TrimRight(content, "\n")
				if out != "" {
					out += "\n"
				}
				return Result{Content: out, Changed: out != content}
			},
		},
	}
}

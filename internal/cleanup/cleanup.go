// Package cleanup runs cosmetic post-processing rules over rendered Markdown.
// Rules are pure functions over text; the engine shields fenced code regions
// from them with placeholders so code blocks survive byte-exact.
package cleanup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Context carries per-page inputs a rule may consult.
type Context struct {
	PageID    string
	PageTitle string
	SpaceKey  string
}

// Result is one rule's outcome.
type Result struct {
	Content string
	Changed bool
	Metrics map[string]int
	Issues  []string
}

// Rule is a cosmetic transformation. Lower Priority runs first.
type Rule struct {
	Name     string
	Version  string
	Priority int
	Process  func(content string, ctx Context) Result
}

// Report aggregates a pipeline run.
type Report struct {
	RulesApplied []string
	Metrics      map[string]int
	Issues       []string
}

// Pipeline applies an ordered list of rules.
type Pipeline struct {
	rules []Rule
}

// NewPipeline sorts the rules by priority once. Equal priorities keep their
// given order.
func NewPipeline(rules []Rule) *Pipeline {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Pipeline{rules: sorted}
}

// Run extracts code fences, applies every rule in priority order to the
// remaining text, and restores the fences.
func (p *Pipeline) Run(content string, ctx Context) (string, Report) {
	report := Report{Metrics: map[string]int{}}

	masked, fences := extractFences(content)
	for _, rule := range p.rules {
		result := rule.Process(masked, ctx)
		if result.Changed {
			masked = result.Content
			report.RulesApplied = append(report.RulesApplied, rule.Name)
		}
		for k, v := range result.Metrics {
			report.Metrics[rule.Name+"."+k] += v
		}
		report.Issues = append(report.Issues, result.Issues...)
	}
	return restoreFences(masked, fences), report
}

// fencePattern matches a whole fenced code block, including fences of more
// than three backticks.
var fencePattern = regexp.MustCompile("(?ms)^(`{3,})[^`\n]*\n.*?^`{3,}[ \t]*$")

const fencePlaceholder = "\x00fence:%d\x00"

func extractFences(content string) (string, []string) {
	fences := []string{}
	masked := fencePattern.ReplaceAllStringFunc(content, func(match string) string {
		fences = append(fences, match)
		return fmt.Sprintf(fencePlaceholder, len(fences)-1)
	})
	return masked, fences
}

func restoreFences(content string, fences []string) string {
	for i, fencedBlock := range fences {
		content = strings.Replace(content, fmt.Sprintf(fencePlaceholder, i), fencedBlock, 1)
	}
	return content
}

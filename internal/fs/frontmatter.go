package fs

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

var (
	// ErrFrontmatterMissing indicates markdown frontmatter was not found.
	ErrFrontmatterMissing = errors.New("missing YAML frontmatter")
	// ErrFrontmatterInvalid indicates markdown frontmatter is malformed.
	ErrFrontmatterInvalid = errors.New("invalid YAML frontmatter")
)

// Frontmatter holds the exported page metadata keys.
type Frontmatter struct {
	Title    string `yaml:"title"`
	ID       string `yaml:"id"`
	Version  int    `yaml:"version,omitempty"`
	ParentID string `yaml:"parentId,omitempty"`
}

// MarkdownDocument represents a markdown file with YAML frontmatter.
type MarkdownDocument struct {
	Frontmatter Frontmatter
	Body        string
}

// FormatMarkdownDocument renders a markdown document with YAML frontmatter.
func FormatMarkdownDocument(doc MarkdownDocument) ([]byte, error) {
	rawFrontmatter, err := yaml.Marshal(doc.Frontmatter)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n")
	builder.Write(rawFrontmatter)
	if !strings.HasSuffix(builder.String(), "\n") {
		builder.WriteString("\n")
	}
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n")
	builder.WriteString(doc.Body)

	return []byte(builder.String()), nil
}

// ParseMarkdownDocument parses a markdown document with YAML frontmatter.
func ParseMarkdownDocument(raw []byte) (MarkdownDocument, error) {
	content := strings.TrimPrefix(string(raw), "\uFEFF")
	frontmatterBlock, body, err := splitFrontmatter(content)
	if err != nil {
		return MarkdownDocument{}, err
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(frontmatterBlock), &fm); err != nil {
		return MarkdownDocument{}, fmt.Errorf("%w: %v", ErrFrontmatterInvalid, err)
	}
	return MarkdownDocument{
		Frontmatter: fm,
		Body:        body,
	}, nil
}

func splitFrontmatter(content string) (frontmatter string, body string, err error) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 {
		return "", "", ErrFrontmatterMissing
	}
	if strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return "", "", ErrFrontmatterMissing
	}

	var frontmatterLines []string
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == frontmatterDelimiter {
			return strings.Join(frontmatterLines, ""), strings.Join(lines[i+1:], ""), nil
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	return "", "", fmt.Errorf("%w: missing closing delimiter", ErrFrontmatterInvalid)
}

package skills

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

var (
	// ErrMissingName is returned for a document without a name field.
	ErrMissingName = errors.New("skill document has no name")

	// ErrMissingDescription is returned for a document without a description.
	ErrMissingDescription = errors.New("skill document has no description")
)

// Document is a parsed capability document: flat frontmatter plus body.
type Document struct {
	Frontmatter map[string]string
	Body        string
}

// ParseDocument splits text into frontmatter and body. The frontmatter is the
// YAML block between two "---" lines at the top of the file; only scalar
// top-level values are kept. Text without frontmatter is all body.
func ParseDocument(text string) (Document, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	doc := Document{Frontmatter: map[string]string{}}

	head, rest, ok := splitFrontmatter(text)
	if !ok {
		doc.Body = strings.TrimSpace(text)
		return doc, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(head), &raw); err != nil {
		// Unquoted values such as "Usage: tool <arg>" are not valid YAML but
		// are common in hand-written frontmatter.
		flat := flatFrontmatter(head)
		if len(flat) == 0 {
			return Document{}, fmt.Errorf("frontmatter: %w", err)
		}
		doc.Frontmatter = flat
		doc.Body = strings.TrimSpace(rest)
		return doc, nil
	}
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any, nil:
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			doc.Frontmatter[k] = s
		}
	}
	doc.Body = strings.TrimSpace(rest)
	return doc, nil
}

// flatFrontmatter reads top-level "key: value" lines, splitting at the first
// colon. Indented lines, comments and lines without a colon are skipped.
func flatFrontmatter(head string) map[string]string {
	out := map[string]string{}
	for _, l := range strings.Split(head, "\n") {
		if l == "" || l[0] == ' ' || l[0] == '\t' || l[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func splitFrontmatter(text string) (head, rest string, ok bool) {
	first, after, found := strings.Cut(text, "\n")
	if !found || strings.TrimSpace(first) != frontmatterDelimiter {
		return "", "", false
	}
	lines := strings.SplitAfter(after, "\n")
	offset := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == frontmatterDelimiter {
			return after[:offset], after[offset+len(l):], true
		}
		offset += len(l)
	}
	return "", "", false
}

// Validate reports a missing required field.
func (d Document) Validate() error {
	if d.Frontmatter["name"] == "" {
		return ErrMissingName
	}
	if d.Frontmatter["description"] == "" {
		return ErrMissingDescription
	}
	return nil
}

package directive

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultExecutableTag is the fence info string that marks runnable code.
const DefaultExecutableTag = "run"

// bracketPattern matches one single-line bracket directive. The verb and its
// arguments are validated separately so near-misses are skipped one by one.
var bracketPattern = regexp.MustCompile(`\[(MEMORY|SKILL)[ \t]+([A-Z]+)([^\[\]\n]*)\]`)

// Parser extracts actions from reply text. The zero value is not usable; use
// NewParser or the package-level Parse.
type Parser struct {
	tags map[string]bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithExecutableTags replaces the set of fence tags that mark runnable code.
// Tags are matched case-insensitively.
func WithExecutableTags(tags ...string) ParserOption {
	return func(p *Parser) {
		if len(tags) == 0 {
			return
		}
		p.tags = make(map[string]bool, len(tags))
		for _, t := range tags {
			p.tags[strings.ToLower(t)] = true
		}
	}
}

// NewParser creates a parser. By default only ```run fences execute.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{tags: map[string]bool{DefaultExecutableTag: true}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse extracts actions using the default parser.
func Parse(text string) []Action {
	return defaultParser.Parse(text)
}

// span is a half-open byte range of text covered by a closed fence.
type span struct{ start, end int }

// Parse returns every recognized action in the order it appears in text.
// Bracket directives inside fenced blocks are treated as code.
func (p *Parser) Parse(text string) []Action {
	fenced, actions := p.scanFences(text)

	for _, m := range bracketPattern.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(fenced, m[0]) {
			continue
		}
		a, ok := bracketAction(text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]])
		if !ok {
			continue
		}
		a.Offset = m[0]
		actions = append(actions, a)
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Offset < actions[j].Offset })
	return actions
}

func bracketAction(family, verb, args string) (Action, bool) {
	if args != "" && args[0] != ' ' && args[0] != '\t' {
		return Action{}, false
	}
	switch family + " " + verb {
	case "MEMORY SET":
		key, value, ok := strings.Cut(args, "=")
		if !ok {
			return Action{}, false
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" || strings.ContainsAny(key, " \t") {
			return Action{}, false
		}
		return Action{Kind: KindMemorySet, Key: key, Value: value}, true
	case "MEMORY GET":
		if key, ok := singleToken(args); ok {
			return Action{Kind: KindMemoryGet, Key: key}, true
		}
	case "MEMORY DEL":
		if key, ok := singleToken(args); ok {
			return Action{Kind: KindMemoryDelete, Key: key}, true
		}
	case "MEMORY LIST":
		if strings.TrimSpace(args) == "" {
			return Action{Kind: KindMemoryList}, true
		}
	case "SKILL LOAD":
		if name, ok := singleToken(args); ok {
			return Action{Kind: KindSkillLoad, Name: name}, true
		}
	}
	return Action{}, false
}

func singleToken(args string) (string, bool) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}

// scanFences walks text line by line, records every closed fence and emits a
// code action for each one tagged as executable. An opening fence with no
// matching close is left as plain text.
func (p *Parser) scanFences(text string) ([]span, []Action) {
	lines := splitLines(text)

	var (
		fenced  []span
		actions []Action
	)
	for i := 0; i < len(lines); i++ {
		ticks, info := fenceOpen(lines[i].text)
		if ticks == 0 {
			continue
		}

		closeAt := -1
		for j := i + 1; j < len(lines); j++ {
			if fenceClose(lines[j].text, ticks) {
				closeAt = j
				break
			}
		}
		if closeAt < 0 {
			continue
		}

		start := lines[i].offset
		end := lines[closeAt].offset + len(lines[closeAt].text)
		fenced = append(fenced, span{start: start, end: end})

		tag := infoTag(info)
		if p.tags[strings.ToLower(tag)] {
			body := make([]string, 0, closeAt-i-1)
			for _, l := range lines[i+1 : closeAt] {
				body = append(body, l.text)
			}
			code := strings.Trim(strings.Join(body, "\n"), "\n")
			if strings.TrimSpace(code) != "" {
				actions = append(actions, Action{
					Kind:     KindCodeRun,
					Code:     code,
					Language: tag,
					Offset:   start,
				})
			}
		}
		i = closeAt
	}
	return fenced, actions
}

type line struct {
	text   string
	offset int
}

func splitLines(text string) []line {
	var out []line
	offset := 0
	for {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx < 0 {
			out = append(out, line{text: strings.TrimSuffix(text[offset:], "\r"), offset: offset})
			return out
		}
		out = append(out, line{text: strings.TrimSuffix(text[offset:offset+idx], "\r"), offset: offset})
		offset += idx + 1
	}
}

// fenceOpen returns the backtick count and info string of an opening fence
// line, or zero when the line is not one.
func fenceOpen(s string) (int, string) {
	s = strings.TrimLeft(s, " \t")
	n := countTicks(s)
	if n < 3 {
		return 0, ""
	}
	info := strings.TrimSpace(s[n:])
	if strings.Contains(info, "`") {
		return 0, ""
	}
	return n, info
}

func fenceClose(s string, ticks int) bool {
	s = strings.TrimSpace(s)
	n := countTicks(s)
	return n >= ticks && n == len(s)
}

func countTicks(s string) int {
	n := 0
	for n < len(s) && s[n] == '`' {
		n++
	}
	return n
}

func infoTag(info string) string {
	if fields := strings.Fields(info); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func insideAny(spans []span, offset int) bool {
	for _, s := range spans {
		if offset >= s.start && offset < s.end {
			return true
		}
	}
	return false
}

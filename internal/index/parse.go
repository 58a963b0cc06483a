package index

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/strata/internal/querysearch"
)

// node is a parsed search expression.
//
// This is a sealed interface - only types in this file implement it.
type node interface {
	searchNode()
}

// termNode matches field:value, or field:value* when prefix is set.
type termNode struct {
	field  string
	value  string
	prefix bool
}

// rangeNode matches field:[lower TO upper]. An empty bound with its open
// flag set is the "*" wildcard.
type rangeNode struct {
	field          string
	lower, upper   string
	lowerOpen      bool
	upperOpen      bool
	lowerInclusive bool
	upperInclusive bool
}

// boolNode joins two expressions with AND or OR.
type boolNode struct {
	op          string
	left, right node
}

func (termNode) searchNode()  {}
func (rangeNode) searchNode() {}
func (boolNode) searchNode()  {}

// parseQuery parses the grammar emitted by querysearch.ToSearchQuery.
// AND binds tighter than OR; parentheses group.
func parseQuery(input string) (node, error) {
	p := &queryParser{in: []rune(input)}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("search query: unexpected %q at offset %d", string(p.in[p.pos:]), p.pos)
	}
	return n, nil
}

type queryParser struct {
	in  []rune
	pos int
}

func (p *queryParser) eof() bool { return p.pos >= len(p.in) }

func (p *queryParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.in[p.pos]) {
		p.pos++
	}
}

// keyword consumes kw when it appears as a whole word at the cursor.
func (p *queryParser) keyword(kw string) bool {
	p.skipSpace()
	end := p.pos + len(kw)
	if end > len(p.in) || string(p.in[p.pos:end]) != kw {
		return false
	}
	if end < len(p.in) && !unicode.IsSpace(p.in[end]) && p.in[end] != '(' {
		return false
	}
	p.pos = end
	return true
}

func (p *queryParser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "OR", left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "AND", left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseUnary() (node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("search query: unexpected end of input")
	}
	if p.in[p.pos] == '(' {
		p.pos++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.in[p.pos] != ')' {
			return nil, fmt.Errorf("search query: missing ) at offset %d", p.pos)
		}
		p.pos++
		return n, nil
	}
	return p.parseTerm()
}

func (p *queryParser) parseTerm() (node, error) {
	start := p.pos
	field, ok := p.readUntil(func(r rune) bool { return r == ':' || unicode.IsSpace(r) || r == ')' })
	if !ok || p.eof() || p.in[p.pos] != ':' || field == "" {
		return nil, fmt.Errorf("search query: expected field:value at offset %d", start)
	}
	p.pos++ // ':'
	field = querysearch.Unescape(field)

	if !p.eof() && (p.in[p.pos] == '[' || p.in[p.pos] == '{') {
		return p.parseRange(field)
	}

	raw, _ := p.readUntil(func(r rune) bool { return unicode.IsSpace(r) || r == ')' })
	if raw == "" {
		return nil, fmt.Errorf("search query: empty value for %s", field)
	}
	term := termNode{field: field}
	if strings.HasSuffix(raw, "*") && !strings.HasSuffix(raw, `\*`) {
		term.prefix = true
		raw = raw[:len(raw)-1]
	}
	term.value = querysearch.Unescape(raw)
	return term, nil
}

func (p *queryParser) parseRange(field string) (node, error) {
	r := rangeNode{field: field, lowerInclusive: p.in[p.pos] == '['}
	p.pos++

	p.skipSpace()
	lower, _ := p.readUntil(unicode.IsSpace)
	if !p.keyword("TO") {
		return nil, fmt.Errorf("search query: expected TO in range for %s", field)
	}
	p.skipSpace()
	upper, _ := p.readUntil(func(r rune) bool { return r == ']' || r == '}' || unicode.IsSpace(r) })
	p.skipSpace()
	if p.eof() || (p.in[p.pos] != ']' && p.in[p.pos] != '}') {
		return nil, fmt.Errorf("search query: unterminated range for %s", field)
	}
	r.upperInclusive = p.in[p.pos] == ']'
	p.pos++

	r.lower, r.lowerOpen = bound(lower)
	r.upper, r.upperOpen = bound(upper)
	return r, nil
}

func bound(raw string) (string, bool) {
	if raw == "*" {
		return "", true
	}
	return querysearch.Unescape(raw), false
}

// readUntil consumes runes up to the first unescaped rune matching stop.
// It reports false when input ended before any stop rune.
func (p *queryParser) readUntil(stop func(rune) bool) (string, bool) {
	var sb strings.Builder
	for !p.eof() {
		r := p.in[p.pos]
		if r == '\\' && p.pos+1 < len(p.in) {
			sb.WriteRune(r)
			sb.WriteRune(p.in[p.pos+1])
			p.pos += 2
			continue
		}
		if stop(r) {
			return sb.String(), true
		}
		sb.WriteRune(r)
		p.pos++
	}
	return sb.String(), false
}

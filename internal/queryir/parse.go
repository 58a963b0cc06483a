package queryir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/strata/internal/ormerr"
)

// Parse reads a query string into a Query.
//
//	SELECT a [, a.col ...] FROM Class a [WHERE cond]
//	DELETE FROM Class a [WHERE cond]
//	UPDATE Class a SET a.col = v [, ...] [WHERE cond]
//
//	cond  := term { (AND|OR) term }
//	term  := a.prop op value | '(' cond ')'
//	op    := = | > | >= | < | <= | LIKE
//	value := 'string' | number | true | false | null | :name | ?N
//
// Keywords are case-insensitive. Property references drop the alias
// prefix, so "p.home.city" becomes "home.city".
func Parse(input string) (*Query, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q, err := p.parseStatement()
	if err != nil {
		return nil, ormerr.IllegalArgument(fmt.Sprintf("parse %q: %v", input, err))
	}
	return q, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokParam
	tokOp
	tokComma
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case r == '=' || r == '<' || r == '>':
			start := i
			i++
			if i < len(runes) && runes[i] == '=' && r != '=' {
				i++
			}
			toks = append(toks, token{tokOp, string(runes[start:i]), start})

		case r == '\'':
			start := i
			var sb strings.Builder
			i++
			for {
				if i >= len(runes) {
					return nil, ormerr.IllegalArgument(fmt.Sprintf("unterminated string at offset %d", start))
				}
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			toks = append(toks, token{tokString, sb.String(), start})

		case r == ':' || r == '?':
			start := i
			i++
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			if i == start+1 {
				return nil, ormerr.IllegalArgument(fmt.Sprintf("empty parameter at offset %d", start))
			}
			toks = append(toks, token{tokParam, string(runes[start:i]), start})

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i]), start})

		case isIdentRune(r):
			start := i
			for i < len(runes) && (isIdentRune(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i]), start})

		default:
			return nil, ormerr.IllegalArgument(fmt.Sprintf("unexpected %q at offset %d", r, i))
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type parser struct {
	toks []token
	pos  int
	q    *Query
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expectKeyword(kw string) error {
	if t := p.next(); !t.keyword(kw) {
		return fmt.Errorf("expected %s at offset %d, got %q", kw, t.pos, t.text)
	}
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at offset %d, got %q", what, t.pos, t.text)
	}
	return t, nil
}

func (p *parser) parseStatement() (*Query, error) {
	p.q = &Query{}
	head := p.next()

	var err error
	switch {
	case head.keyword("select"):
		err = p.parseSelect()
	case head.keyword("delete"):
		p.q.Kind = KindDelete
		if err = p.expectKeyword("from"); err == nil {
			err = p.parseRange()
		}
	case head.keyword("update"):
		p.q.Kind = KindUpdate
		if err = p.parseRange(); err == nil {
			err = p.parseSet()
		}
	default:
		err = fmt.Errorf("expected SELECT, DELETE or UPDATE, got %q", head.text)
	}
	if err != nil {
		return nil, err
	}

	if p.peek().keyword("where") {
		p.next()
		if err := p.parseCondition(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return p.q, nil
}

// parseSelect reads the projection, which is resolved against the alias
// once FROM has been read.
func (p *parser) parseSelect() error {
	var projection []string
	for {
		t, err := p.expect(tokIdent, "projection")
		if err != nil {
			return err
		}
		projection = append(projection, t.text)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.expectKeyword("from"); err != nil {
		return err
	}
	if err := p.parseRange(); err != nil {
		return err
	}
	for _, item := range projection {
		if item == p.q.Alias {
			continue
		}
		p.q.Columns = append(p.q.Columns, p.property(item))
	}
	return nil
}

// parseRange reads "Class alias".
func (p *parser) parseRange() error {
	entity, err := p.expect(tokIdent, "entity class")
	if err != nil {
		return err
	}
	p.q.Entity = entity.text
	if t := p.peek(); t.kind == tokIdent && !t.keyword("where") && !t.keyword("set") {
		p.q.Alias = p.next().text
	}
	return nil
}

func (p *parser) parseSet() error {
	if err := p.expectKeyword("set"); err != nil {
		return err
	}
	for {
		prop, err := p.expect(tokIdent, "update target")
		if err != nil {
			return err
		}
		if op, err := p.expect(tokOp, "="); err != nil || op.text != "=" {
			return fmt.Errorf("expected = after %s", prop.text)
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		p.q.Updates = append(p.q.Updates, UpdateClause{Property: p.property(prop.text), Value: v})
		if p.peek().kind != tokComma {
			return nil
		}
		p.next()
	}
}

func (p *parser) parseCondition() error {
	if err := p.parseTerm(); err != nil {
		return err
	}
	for {
		t := p.peek()
		switch {
		case t.keyword("and"):
			p.next()
			p.q.Filters = append(p.q.Filters, And)
		case t.keyword("or"):
			p.next()
			p.q.Filters = append(p.q.Filters, Or)
		default:
			return nil
		}
		if err := p.parseTerm(); err != nil {
			return err
		}
	}
}

func (p *parser) parseTerm() error {
	if p.peek().kind == tokLParen {
		p.next()
		p.q.Filters = append(p.q.Filters, LParen)
		if err := p.parseCondition(); err != nil {
			return err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return err
		}
		p.q.Filters = append(p.q.Filters, RParen)
		return nil
	}

	prop, err := p.expect(tokIdent, "property")
	if err != nil {
		return err
	}

	opTok := p.next()
	var op Operator
	switch {
	case opTok.kind == tokOp, opTok.keyword("like"):
		op, err = ParseOperator(opTok.text)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("expected operator at offset %d, got %q", opTok.pos, opTok.text)
	}

	v, err := p.parseValue()
	if err != nil {
		return err
	}
	p.q.Filters = append(p.q.Filters, FilterClause{Property: p.property(prop.text), Condition: op, Value: v})
	return nil
}

func (p *parser) parseValue() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if strings.ContainsAny(t.text, ".eE") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", t.text)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return n, nil
	case tokParam:
		param, ok := ParseParam(t.text)
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q", t.text)
		}
		return param, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected value at offset %d, got %q", t.pos, t.text)
}

// property strips the alias prefix from a path.
func (p *parser) property(path string) string {
	if p.q.Alias != "" {
		if rest, ok := strings.CutPrefix(path, p.q.Alias+"."); ok {
			return rest
		}
	}
	return path
}

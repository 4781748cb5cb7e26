package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rkm/geocatalog/pkg/geo"
)

// ParseText parses a CQL2-text expression into a Node.
//
// The grammar is the restricted operator set of the filter language:
// comparisons (= <> < <= > >= LIKE IN IS NULL), variadic AND/OR, NOT,
// spatial functions s_intersects/s_contains/s_within with WKT or BBOX
// literals, and temporal functions t_before/t_after/t_during with
// TIMESTAMP or INTERVAL literals.
func ParseText(input string) (Node, error) {
	lex, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &textParser{src: input, toks: lex}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected trailing input at %q", ErrSyntax, p.peek().text)
	}
	return node, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '\'':
			start := i
			i++
			var b strings.Builder
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("%w: unterminated string literal at %d", ErrSyntax, start)
				}
				if src[i] == '\'' {
					if i+1 < len(src) && src[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteByte(src[i])
				i++
			}
			toks = append(toks, token{tokString, b.String(), start})
		case c == '<' || c == '>' || c == '=':
			start := i
			i++
			if c == '<' && i < len(src) && (src[i] == '=' || src[i] == '>') {
				i++
			} else if c == '>' && i < len(src) && src[i] == '=' {
				i++
			}
			toks = append(toks, token{tokOp, src[start:i], start})
		case isDigit(c) || ((c == '-' || c == '+') && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i++
			for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == 'e' || src[i] == 'E' ||
				((src[i] == '-' || src[i] == '+') && (src[i-1] == 'e' || src[i-1] == 'E'))) {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrSyntax, string(c), i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.' || c == ':'
}

type textParser struct {
	src  string
	toks []token
	i    int
}

func (p *textParser) peek() token { return p.toks[p.i] }

func (p *textParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *textParser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.next()
		return true
	}
	return false
}

func (p *textParser) expect(kind tokKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, fmt.Errorf("%w: expected %s at position %d, got %q", ErrSyntax, what, t.pos, t.text)
	}
	return t, nil
}

func (p *textParser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Logical{Op: OpOr, Children: children}, nil
}

func (p *textParser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.keyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Logical{Op: OpAnd, Children: children}, nil
}

func (p *textParser) parseNot() (Node, error) {
	if p.keyword("not") {
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Logical{Op: OpNot, Children: []Node{child}}, nil
	}
	return p.parsePrimary()
}

func (p *textParser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return node, nil
	case tokIdent:
		lower := strings.ToLower(t.text)
		switch lower {
		case "s_intersects", "s_contains", "s_within":
			return p.parseSpatialCall(Op(lower))
		case "t_before", "t_after", "t_during":
			return p.parseTemporalCall(Op(lower))
		}
		return p.parseComparison()
	default:
		return nil, fmt.Errorf("%w: unexpected token %q at position %d", ErrSyntax, t.text, t.pos)
	}
}

func (p *textParser) parseComparison() (Node, error) {
	ref, err := p.expect(tokIdent, "property reference")
	if err != nil {
		return nil, err
	}
	prop := ref.text
	if prop == FieldGeometry {
		return nil, fmt.Errorf("%w: comparison cannot use the geometry field", ErrSyntax)
	}

	t := p.peek()
	switch {
	case t.kind == tokOp:
		p.next()
		lit, err := p.parseScalarLiteral()
		if err != nil {
			return nil, err
		}
		op := Op(t.text)
		switch op {
		case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
			return &Comparison{Op: op, Property: prop, Literal: lit}, nil
		}
		return nil, fmt.Errorf("%w: unknown comparison operator %q", ErrSyntax, t.text)

	case p.keyword("like"):
		s, err := p.expect(tokString, "string pattern")
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: OpLike, Property: prop, Literal: StringValue(s.text)}, nil

	case p.keyword("in"):
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		var arr []Value
		for {
			lit, err := p.parseScalarLiteral()
			if err != nil {
				return nil, err
			}
			arr = append(arr, lit)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return &Comparison{Op: OpIn, Property: prop, Literal: Value{Kind: KindArray, Arr: arr}}, nil

	case p.keyword("is"):
		negated := p.keyword("not")
		if !p.keyword("null") {
			return nil, fmt.Errorf("%w: expected NULL after IS", ErrSyntax)
		}
		var node Node = &Comparison{Op: OpIsNull, Property: prop}
		if negated {
			node = &Logical{Op: OpNot, Children: []Node{node}}
		}
		return node, nil

	default:
		return nil, fmt.Errorf("%w: expected operator after %q at position %d", ErrSyntax, prop, t.pos)
	}
}

func (p *textParser) parseScalarLiteral() (Value, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return StringValue(t.text), nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid number %q", ErrSyntax, t.text)
		}
		return NumberValue(f), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		case "null":
			return NullValue, nil
		case "timestamp":
			s, err := p.parseSingleStringCall()
			if err != nil {
				return Value{}, err
			}
			ts, err := parseRFC3339(s)
			if err != nil {
				return Value{}, err
			}
			return TimeValue(ts), nil
		}
		return Value{}, fmt.Errorf("%w: unexpected literal %q", ErrSyntax, t.text)
	default:
		return Value{}, fmt.Errorf("%w: expected literal at position %d, got %q", ErrSyntax, t.pos, t.text)
	}
}

func (p *textParser) parseSpatialCall(op Op) (Node, error) {
	p.next() // function name
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	ref, err := p.expect(tokIdent, "property reference")
	if err != nil {
		return nil, err
	}
	if IsReservedField(ref.text) && ref.text != FieldGeometry {
		return nil, fmt.Errorf("%w: %q requires a geometry-valued property, got %q", ErrSyntax, op, ref.text)
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}

	node := &Spatial{Op: op, Property: ref.text}
	fn, err := p.expect(tokIdent, "geometry literal")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(fn.text) {
	case "bbox":
		bbox, err := p.parseNumberCall()
		if err != nil {
			return nil, err
		}
		if len(bbox) != 4 && len(bbox) != 6 {
			return nil, fmt.Errorf("%w: BBOX requires 4 or 6 values, got %d", ErrSyntax, len(bbox))
		}
		node.BBox = bbox
	case "point", "polygon", "multipolygon":
		wkt, err := p.captureBalanced(fn)
		if err != nil {
			return nil, err
		}
		g, err := geo.FromWKT(wkt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		node.Geometry = g
	default:
		return nil, fmt.Errorf("%w: unsupported geometry literal %q", ErrSyntax, fn.text)
	}

	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *textParser) parseTemporalCall(op Op) (Node, error) {
	p.next() // function name
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	ref, err := p.expect(tokIdent, "property reference")
	if err != nil {
		return nil, err
	}
	if IsReservedField(ref.text) && ref.text != FieldDatetime {
		return nil, fmt.Errorf("%w: %q requires a datetime-valued property, got %q", ErrSyntax, op, ref.text)
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}

	node := &Temporal{Op: op, Property: ref.text}
	t := p.next()
	switch {
	case t.kind == tokString:
		ts, err := parseRFC3339(t.text)
		if err != nil {
			return nil, err
		}
		node.Start, node.End = ts, ts
	case t.kind == tokIdent && strings.EqualFold(t.text, "timestamp"):
		s, err := p.parseSingleStringCall()
		if err != nil {
			return nil, err
		}
		ts, err := parseRFC3339(s)
		if err != nil {
			return nil, err
		}
		node.Start, node.End = ts, ts
	case t.kind == tokIdent && strings.EqualFold(t.text, "interval"):
		parts, err := p.parseStringCall()
		if err != nil {
			return nil, err
		}
		interval := make([]any, len(parts))
		for i, s := range parts {
			interval[i] = s
		}
		if err := fillInterval(node, interval); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: expected temporal literal at position %d, got %q", ErrSyntax, t.pos, t.text)
	}

	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return node, nil
}

// parseSingleStringCall parses ('...') and returns the string.
func (p *textParser) parseSingleStringCall() (string, error) {
	parts, err := p.parseStringCall()
	if err != nil {
		return "", err
	}
	if len(parts) != 1 {
		return "", fmt.Errorf("%w: expected a single string argument, got %d", ErrSyntax, len(parts))
	}
	return parts[0], nil
}

// parseStringCall parses ('a', 'b', ...) and returns the strings.
func (p *textParser) parseStringCall() ([]string, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var parts []string
	for {
		s, err := p.expect(tokString, "string argument")
		if err != nil {
			return nil, err
		}
		parts = append(parts, s.text)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return parts, nil
}

// parseNumberCall parses (n, n, ...) and returns the numbers.
func (p *textParser) parseNumberCall() ([]float64, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var nums []float64
	for {
		t, err := p.expect(tokNumber, "number argument")
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, t.text)
		}
		nums = append(nums, f)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return nums, nil
}

// captureBalanced slices the raw source of a WKT literal, from the function
// name token through its matching close parenthesis, and advances the parser
// past it.
func (p *textParser) captureBalanced(fn token) (string, error) {
	if p.peek().kind != tokLParen {
		return "", fmt.Errorf("%w: expected '(' after %q", ErrSyntax, fn.text)
	}
	depth := 0
	for {
		t := p.next()
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth == 0 {
				return p.src[fn.pos : t.pos+1], nil
			}
		case tokEOF:
			return "", fmt.Errorf("%w: unterminated geometry literal", ErrSyntax)
		}
	}
}

package query

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nonibytes/docmap/docmap/document"
)

// Resolver reports the kind of a field, or false when the field is unknown.
type Resolver func(field string) (document.Kind, bool)

// KindsResolver resolves fields from a fixed map.
func KindsResolver(kinds map[string]document.Kind) Resolver {
	return func(field string) (document.Kind, bool) {
		k, ok := kinds[field]
		return k, ok
	}
}

// Parser turns query strings and raw field values into queries bound to a
// field layout. A Parser keeps per-parse state and must not be shared
// between goroutines; build a new one per call.
//
// Syntax:
//
//	name:value  name:"quoted value"  name:1..5  name>3  name<=2.5
//	a AND b  a OR b  NOT a  a & b  a | b  !a  (a OR b)  *:*
//
// Bare values search DefaultField.
type Parser struct {
	DefaultField string

	resolve Resolver
	tokens  []Token
	pos     int
}

// NewParser returns a parser bound to resolve.
func NewParser(defaultField string, resolve Resolver) *Parser {
	return &Parser{DefaultField: defaultField, resolve: resolve}
}

// Parse parses a query string.
func (p *Parser) Parse(input string) (Query, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}
	p.tokens = tokens
	p.pos = 0
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.match(TokEOF) {
		return nil, fmt.Errorf("unexpected %v at offset %d", p.current().Kind, p.current().Pos)
	}
	return Normalize(q)
}

// Phrase builds a phrase query on a Text field.
func (p *Parser) Phrase(field, text string) (Query, error) {
	kind, err := p.kind(field)
	if err != nil {
		return nil, err
	}
	if kind != document.Text {
		return nil, fmt.Errorf("field %s is %s, phrase queries need text", field, kind)
	}
	if text == "" {
		return nil, fmt.Errorf("field %s: empty phrase", field)
	}
	return Phrase{Field: field, Text: text}, nil
}

// Field builds the equality query for a raw value the way the field kind
// dictates: a term for keywords, a phrase for text and a closed range for
// numbers.
func (p *Parser) Field(field, value string) (Query, error) {
	kind, err := p.kind(field)
	if err != nil {
		return nil, err
	}
	switch kind {
	case document.Keyword:
		return Term{Field: field, Value: value}, nil
	case document.Text:
		return p.Phrase(field, value)
	case document.Int, document.Long:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not an integer", field, value)
		}
		return p.intRange(field, kind, v, v, true, true)
	case document.Float, document.Double:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", field, value)
		}
		return FloatRange(field, kind, widen(kind, v), widen(kind, v), true, true), nil
	case document.Stored:
		return nil, fmt.Errorf("field %s is not indexed", field)
	default:
		return nil, fmt.Errorf("field %s has unknown kind %s", field, kind)
	}
}

func (p *Parser) kind(field string) (document.Kind, error) {
	if p.resolve == nil {
		return 0, fmt.Errorf("unknown field %s", field)
	}
	kind, ok := p.resolve(field)
	if !ok {
		return 0, fmt.Errorf("unknown field %s", field)
	}
	return kind, nil
}

func (p *Parser) intRange(field string, kind document.Kind, lo, hi int64, incLo, incHi bool) (Query, error) {
	if kind == document.Int && (lo < math.MinInt32 || hi > math.MaxInt32) {
		return nil, fmt.Errorf("field %s: value out of int range", field)
	}
	return IntRange(field, kind, lo, hi, incLo, incHi), nil
}

// widen maps v to the exact float64 of the value a Float field stores.
func widen(kind document.Kind, v float64) float64 {
	if kind == document.Float {
		return float64(float32(v))
	}
	return v
}

func (p *Parser) parseOr() (Query, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.match(TokOr) {
		return left, nil
	}
	out := AnyOf(left)
	for p.match(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		out.Add(right, Should)
	}
	return out, nil
}

func (p *Parser) parseAnd() (Query, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.match(TokAnd) {
		return left, nil
	}
	out := AllOf(left)
	for p.match(TokAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		out.Add(right, Must)
	}
	return out, nil
}

func (p *Parser) parseNot() (Query, error) {
	if p.match(TokNot) {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		var b Boolean
		b.Add(MatchAll{}, Must)
		b.Add(inner, MustNot)
		return b, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Query, error) {
	if p.match(TokLParen) {
		p.advance()
		q, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ')' at offset %d, got %v", p.current().Pos, p.current().Kind)
		}
		p.advance()
		return q, nil
	}
	return p.parsePredicate()
}

func (p *Parser) parsePredicate() (Query, error) {
	first := p.current()
	switch first.Kind {
	case TokIdent, TokString, TokNumber:
	case TokEOF:
		return nil, fmt.Errorf("unexpected end of query")
	default:
		return nil, fmt.Errorf("expected term at offset %d, got %v", first.Pos, first.Kind)
	}
	p.advance()

	if first.Kind == TokIdent {
		switch {
		case p.match(TokColon):
			p.advance()
			if first.Value == "*" && p.match(TokIdent) && p.current().Value == "*" {
				p.advance()
				return MatchAll{}, nil
			}
			return p.parseFieldValue(first.Value)
		case p.match(TokGt), p.match(TokGte), p.match(TokLt), p.match(TokLte):
			return p.parseComparison(first.Value)
		}
	}

	if p.DefaultField == "" {
		return nil, fmt.Errorf("bare value %q at offset %d needs a field", first.Value, first.Pos)
	}
	if first.Kind == TokNumber && p.match(TokDotDot) {
		p.pos--
		return p.parseFieldValue(p.DefaultField)
	}
	return p.Field(p.DefaultField, first.Value)
}

func (p *Parser) parseFieldValue(field string) (Query, error) {
	tok := p.current()
	switch tok.Kind {
	case TokString, TokIdent:
		p.advance()
		return p.Field(field, tok.Value)
	case TokNumber:
		p.advance()
		if !p.match(TokDotDot) {
			return p.Field(field, tok.Value)
		}
		p.advance()
		hi := p.current()
		if hi.Kind != TokNumber {
			return nil, fmt.Errorf("expected number at offset %d", hi.Pos)
		}
		p.advance()
		return p.numericRange(field, &tok, &hi, true, true)
	default:
		return nil, fmt.Errorf("expected value after '%s:'", field)
	}
}

func (p *Parser) parseComparison(field string) (Query, error) {
	op := p.current().Kind
	p.advance()
	tok := p.current()
	if tok.Kind != TokNumber {
		return nil, fmt.Errorf("expected number at offset %d", tok.Pos)
	}
	p.advance()
	switch op {
	case TokGt:
		return p.numericRange(field, &tok, nil, false, false)
	case TokGte:
		return p.numericRange(field, &tok, nil, true, false)
	case TokLt:
		return p.numericRange(field, nil, &tok, false, false)
	default:
		return p.numericRange(field, nil, &tok, false, true)
	}
}

func (p *Parser) numericRange(field string, lo, hi *Token, incLo, incHi bool) (Query, error) {
	kind, err := p.kind(field)
	if err != nil {
		return nil, err
	}
	r := NumericRange{Field: field, Kind: kind, IncludeLo: incLo, IncludeHi: incHi}
	switch kind {
	case document.Int, document.Long:
		if lo != nil {
			v, err := strconv.ParseInt(lo.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not an integer", field, lo.Value)
			}
			r.Lo = v
		}
		if hi != nil {
			v, err := strconv.ParseInt(hi.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not an integer", field, hi.Value)
			}
			r.Hi = v
		}
	case document.Float, document.Double:
		if lo != nil {
			r.Lo = widen(kind, lo.Num)
		}
		if hi != nil {
			r.Hi = widen(kind, hi.Num)
		}
	default:
		return nil, fmt.Errorf("field %s is %s, ranges need a numeric field", field, kind)
	}
	return r, nil
}

func (p *Parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) match(kind TokenKind) bool {
	return p.current().Kind == kind
}

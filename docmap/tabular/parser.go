// Package tabular reads and writes delimited text lines, one record per line.
package tabular

import (
	"fmt"
	"strings"
)

// Quote is a pair of opening and closing quote characters.
type Quote struct {
	Open, Close rune
}

// Parser splits lines into fields and joins fields into lines.
//
// A quote only opens at the start of a field. Inside a quoted field the
// escape character makes the next character literal and delimiters are
// kept. Outside quotes the escape character has no meaning.
type Parser struct {
	Delimiter rune
	Escape    rune
	// Quotes lists the accepted quote pairs; the first one is used by Write.
	Quotes []Quote
	// Strict rejects a closing quote not followed by a delimiter and an
	// unterminated quote. Otherwise text after a closing quote up to the
	// next delimiter is dropped and an unterminated quote runs to the end
	// of the line.
	Strict bool
	// AutoEscape makes Write quote fields that would not parse back.
	AutoEscape bool
}

var defaultQuotes = []Quote{{'\'', '\''}, {'"', '"'}}

// NewParser returns a strict, auto-escaping parser for delimiter with
// backslash escapes and single or double quotes.
func NewParser(delimiter rune) Parser {
	return Parser{
		Delimiter:  delimiter,
		Escape:     '\\',
		Quotes:     append([]Quote(nil), defaultQuotes...),
		Strict:     true,
		AutoEscape: true,
	}
}

// DefaultParser reads tab separated lines.
func DefaultParser() Parser { return NewParser('\t') }

// CSVParser reads comma separated lines.
func CSVParser() Parser { return NewParser(',') }

// ParseError reports a malformed line. Offset is the rune offset in the
// line; Line is set by readers that know it.
type ParseError struct {
	Line   int
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, offset %d: %s", e.Line, e.Offset, e.Msg)
	}
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

func (p Parser) quote(r rune) (Quote, bool) {
	for _, q := range p.Quotes {
		if q.Open == r {
			return q, true
		}
	}
	return Quote{}, false
}

// Parse splits line into fields. An empty line is one empty field.
func (p Parser) Parse(line string) ([]string, error) {
	rs := []rune(line)
	var (
		fields  []string
		cur     strings.Builder
		atStart = true
	)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if atStart {
			atStart = false
			if q, ok := p.quote(c); ok {
				end, err := p.quoted(rs, i+1, q, &cur)
				if err != nil {
					return nil, err
				}
				if end < 0 {
					// unterminated, non-strict
					fields = append(fields, cur.String())
					return fields, nil
				}
				fields = append(fields, cur.String())
				cur.Reset()
				next, err := p.afterQuote(rs, end+1)
				if err != nil {
					return nil, err
				}
				if next >= len(rs) {
					return fields, nil
				}
				i = next
				atStart = true
				continue
			}
		}
		if c == p.Delimiter {
			fields = append(fields, cur.String())
			cur.Reset()
			atStart = true
			continue
		}
		cur.WriteRune(c)
	}
	fields = append(fields, cur.String())
	return fields, nil
}

// quoted reads a quoted body starting at from into cur and returns the
// offset of the closing quote, or -1 when the line ends first.
func (p Parser) quoted(rs []rune, from int, q Quote, cur *strings.Builder) (int, error) {
	for i := from; i < len(rs); i++ {
		switch c := rs[i]; {
		case c == p.Escape && p.Escape != 0:
			if i+1 < len(rs) {
				i++
				cur.WriteRune(rs[i])
			}
		case c == q.Close:
			return i, nil
		default:
			cur.WriteRune(c)
		}
	}
	if p.Strict {
		return 0, &ParseError{Offset: len(rs), Msg: "missing closing quote"}
	}
	return -1, nil
}

// afterQuote returns the offset of the delimiter ending a quoted field, or
// len(rs) when the line ends.
func (p Parser) afterQuote(rs []rune, from int) (int, error) {
	if from >= len(rs) {
		return len(rs), nil
	}
	if rs[from] == p.Delimiter {
		return from, nil
	}
	if p.Strict {
		return 0, &ParseError{Offset: from, Msg: fmt.Sprintf("expected delimiter after closing quote, found %q", rs[from])}
	}
	for i := from; i < len(rs); i++ {
		if rs[i] == p.Delimiter {
			return i, nil
		}
	}
	return len(rs), nil
}

// Write joins fields with the delimiter. With AutoEscape a field holding
// the delimiter or starting with a quote is wrapped in the first quote
// pair, escaping delimiters, the closing quote and the escape character.
func (p Parser) Write(fields []string) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteRune(p.Delimiter)
		}
		if p.AutoEscape && p.needsQuote(f) {
			p.writeQuoted(&sb, f)
			continue
		}
		sb.WriteString(f)
	}
	return sb.String()
}

func (p Parser) needsQuote(f string) bool {
	if len(p.Quotes) == 0 || f == "" {
		return false
	}
	if strings.ContainsRune(f, p.Delimiter) || (p.Escape != 0 && strings.ContainsRune(f, p.Escape)) {
		return true
	}
	first := []rune(f)[0]
	_, ok := p.quote(first)
	return ok
}

func (p Parser) writeQuoted(sb *strings.Builder, f string) {
	q := p.Quotes[0]
	sb.WriteRune(q.Open)
	for _, c := range f {
		if p.Escape != 0 && (c == p.Delimiter || c == q.Close || c == p.Escape) {
			sb.WriteRune(p.Escape)
		}
		sb.WriteRune(c)
	}
	sb.WriteRune(q.Close)
}

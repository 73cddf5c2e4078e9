package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nonibytes/docmap/docmap/document"
)

// Query is a node of a boolean query tree evaluated by an index.
type Query interface {
	isQuery()
	// String renders a canonical form; equal queries render equally.
	String() string
}

// Term matches documents holding exactly Value under Field.
type Term struct {
	Field string
	Value string
}

func (Term) isQuery() {}

func (t Term) String() string {
	return t.Field + ":" + strconv.Quote(t.Value)
}

// NumericRange matches numeric values between Lo and Hi. Lo and Hi hold
// int64 for Int/Long fields and float64 for Float/Double fields; a nil bound
// is open.
type NumericRange struct {
	Field     string
	Kind      document.Kind
	Lo, Hi    any
	IncludeLo bool
	IncludeHi bool
}

func (NumericRange) isQuery() {}

func (r NumericRange) String() string {
	var sb strings.Builder
	sb.WriteString(r.Field)
	sb.WriteString(":")
	if r.IncludeLo {
		sb.WriteString("[")
	} else {
		sb.WriteString("{")
	}
	sb.WriteString(boundString(r.Lo))
	sb.WriteString(" TO ")
	sb.WriteString(boundString(r.Hi))
	if r.IncludeHi {
		sb.WriteString("]")
	} else {
		sb.WriteString("}")
	}
	return sb.String()
}

func boundString(v any) string {
	switch b := v.(type) {
	case nil:
		return "*"
	case int64:
		return strconv.FormatInt(b, 10)
	case float64:
		return strconv.FormatFloat(b, 'g', -1, 64)
	default:
		return fmt.Sprint(b)
	}
}

// IntRange builds a range over an Int or Long field.
func IntRange(field string, kind document.Kind, lo, hi int64, includeLo, includeHi bool) NumericRange {
	return NumericRange{Field: field, Kind: kind, Lo: lo, Hi: hi, IncludeLo: includeLo, IncludeHi: includeHi}
}

// FloatRange builds a range over a Float or Double field.
func FloatRange(field string, kind document.Kind, lo, hi float64, includeLo, includeHi bool) NumericRange {
	return NumericRange{Field: field, Kind: kind, Lo: lo, Hi: hi, IncludeLo: includeLo, IncludeHi: includeHi}
}

// Phrase matches Text fields containing Text as a phrase. How the phrase is
// matched (substring or word sequence) is decided by the index analyzer.
type Phrase struct {
	Field string
	Text  string
}

func (Phrase) isQuery() {}

func (p Phrase) String() string {
	return p.Field + ":~" + strconv.Quote(p.Text)
}

// MatchAll matches every live document.
type MatchAll struct{}

func (MatchAll) isQuery() {}

func (MatchAll) String() string { return "*:*" }

// Occur says how a clause takes part in a Boolean query.
type Occur int

const (
	Must Occur = iota
	Should
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case Should:
		return ""
	case MustNot:
		return "-"
	default:
		return "?"
	}
}

// Clause is one member of a Boolean query.
type Clause struct {
	Query Query
	Occur Occur
}

// Boolean combines clauses. When at least one Must clause is present,
// Should clauses are optional; otherwise at least one Should must match.
type Boolean struct {
	Clauses []Clause
}

func (Boolean) isQuery() {}

func (b Boolean) String() string {
	parts := make([]string, 0, len(b.Clauses))
	for _, c := range b.Clauses {
		parts = append(parts, c.Occur.String()+c.Query.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Add appends a clause.
func (b *Boolean) Add(q Query, occur Occur) {
	b.Clauses = append(b.Clauses, Clause{Query: q, Occur: occur})
}

// Empty reports whether the query has no clauses.
func (b Boolean) Empty() bool { return len(b.Clauses) == 0 }

// AllOf requires every query.
func AllOf(qs ...Query) Boolean {
	var b Boolean
	for _, q := range qs {
		b.Add(q, Must)
	}
	return b
}

// AnyOf requires at least one query.
func AnyOf(qs ...Query) Boolean {
	var b Boolean
	for _, q := range qs {
		b.Add(q, Should)
	}
	return b
}

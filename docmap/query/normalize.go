package query

import (
	"fmt"
)

// Normalize validates q and flattens nested booleans. A boolean with only
// prohibited clauses gets a MatchAll anchor so it has something to subtract
// from.
func Normalize(q Query) (Query, error) {
	switch e := q.(type) {
	case Boolean:
		return normalizeBoolean(e)
	case Phrase:
		if e.Text == "" {
			return nil, fmt.Errorf("field %s: empty phrase", e.Field)
		}
	case NumericRange:
		if err := validateRange(e); err != nil {
			return nil, err
		}
	case Term, MatchAll:
	case nil:
		return nil, fmt.Errorf("nil query")
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}
	return q, nil
}

func normalizeBoolean(b Boolean) (Query, error) {
	if b.Empty() {
		return nil, fmt.Errorf("boolean query has no clauses")
	}
	var out Boolean
	for _, c := range b.Clauses {
		inner, err := Normalize(c.Query)
		if err != nil {
			return nil, err
		}
		if nested, ok := inner.(Boolean); ok && c.Occur != MustNot && uniform(nested, c.Occur) {
			out.Clauses = append(out.Clauses, nested.Clauses...)
			continue
		}
		out.Add(inner, c.Occur)
	}
	if !hasPositiveAnchor(out) {
		out.Clauses = append([]Clause{{Query: MatchAll{}, Occur: Must}}, out.Clauses...)
	}
	if len(out.Clauses) == 1 && out.Clauses[0].Occur != MustNot {
		return out.Clauses[0].Query, nil
	}
	return out, nil
}

// uniform reports whether every clause of b has occur.
func uniform(b Boolean, occur Occur) bool {
	for _, c := range b.Clauses {
		if c.Occur != occur {
			return false
		}
	}
	return true
}

func hasPositiveAnchor(b Boolean) bool {
	for _, c := range b.Clauses {
		if c.Occur != MustNot {
			return true
		}
	}
	return false
}

func validateRange(r NumericRange) error {
	if !r.Kind.Numeric() {
		return fmt.Errorf("field %s is %s, ranges need a numeric field", r.Field, r.Kind)
	}
	switch lo := r.Lo.(type) {
	case nil:
	case int64:
		if hi, ok := r.Hi.(int64); ok && lo > hi {
			return fmt.Errorf("field %s: inverted range %s", r.Field, r.String())
		}
	case float64:
		if hi, ok := r.Hi.(float64); ok && lo > hi {
			return fmt.Errorf("field %s: inverted range %s", r.Field, r.String())
		}
	default:
		return fmt.Errorf("field %s: unsupported bound %T", r.Field, r.Lo)
	}
	switch r.Hi.(type) {
	case nil, int64, float64:
	default:
		return fmt.Errorf("field %s: unsupported bound %T", r.Field, r.Hi)
	}
	return nil
}

// Fields collects the field names a query touches, in first-seen order.
func Fields(q Query) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Query)
	walk = func(q Query) {
		var f string
		switch e := q.(type) {
		case Boolean:
			for _, c := range e.Clauses {
				walk(c.Query)
			}
			return
		case Term:
			f = e.Field
		case Phrase:
			f = e.Field
		case NumericRange:
			f = e.Field
		default:
			return
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	walk(q)
	return out
}

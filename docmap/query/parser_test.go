package query

import (
	"testing"

	"github.com/nonibytes/docmap/docmap/document"
)

func testParser() *Parser {
	return NewParser("title", KindsResolver(map[string]document.Kind{
		"title":    document.Text,
		"tag":      document.Keyword,
		"count":    document.Int,
		"total":    document.Long,
		"ratio":    document.Float,
		"score":    document.Double,
		"raw":      document.Stored,
		"map.key":  document.Long,
		"map.val":  document.Text,
		"children": document.Keyword,
	}))
}

func TestParseKeywordTerm(t *testing.T) {
	q, err := testParser().Parse("tag:hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	term, ok := q.(Term)
	if !ok {
		t.Fatalf("expected Term, got %T", q)
	}
	if term.Field != "tag" || term.Value != "hello" {
		t.Errorf("expected tag:hello, got %s:%s", term.Field, term.Value)
	}
}

func TestParseTextPhrase(t *testing.T) {
	q, err := testParser().Parse(`title:"black cat"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ph, ok := q.(Phrase)
	if !ok {
		t.Fatalf("expected Phrase, got %T", q)
	}
	if ph.Text != "black cat" {
		t.Errorf("unexpected phrase %q", ph.Text)
	}
}

func TestParseBareValueUsesDefaultField(t *testing.T) {
	q, err := testParser().Parse("cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ph, ok := q.(Phrase); !ok || ph.Field != "title" {
		t.Fatalf("expected phrase on title, got %#v", q)
	}
}

func TestParseNumericEqualityIsClosedRange(t *testing.T) {
	q, err := testParser().Parse("count:4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, ok := q.(NumericRange)
	if !ok {
		t.Fatalf("expected NumericRange, got %T", q)
	}
	if r.Lo != int64(4) || r.Hi != int64(4) || !r.IncludeLo || !r.IncludeHi {
		t.Errorf("expected [4 TO 4], got %s", r.String())
	}
}

func TestParseFloatWidensToStoredPrecision(t *testing.T) {
	q, err := testParser().Parse("ratio:0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := q.(NumericRange)
	if r.Lo != float64(float32(0.1)) {
		t.Errorf("expected float32-widened bound, got %v", r.Lo)
	}
	q, err = testParser().Parse("score:0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.(NumericRange).Lo != 0.1 {
		t.Errorf("expected exact double bound, got %v", q.(NumericRange).Lo)
	}
}

func TestParseRangeAndComparisons(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"total:1..10", "total:[1 TO 10]"},
		{"total>5", "total:{5 TO *}"},
		{"total>=5", "total:[5 TO *}"},
		{"score<2.5", "score:{* TO 2.5}"},
		{"score<=2.5", "score:{* TO 2.5]"},
	}
	for _, tt := range tests {
		q, err := testParser().Parse(tt.input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.input, err)
		}
		if q.String() != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.input, tt.want, q.String())
		}
	}
}

func TestParseAndFlattens(t *testing.T) {
	q, err := testParser().Parse("tag:a AND (tag:b AND count:3)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := q.(Boolean)
	if !ok {
		t.Fatalf("expected Boolean, got %T", q)
	}
	if len(b.Clauses) != 3 {
		t.Fatalf("expected 3 flattened clauses, got %s", b.String())
	}
	for _, c := range b.Clauses {
		if c.Occur != Must {
			t.Errorf("expected only Must clauses, got %s", b.String())
		}
	}
}

func TestParseOr(t *testing.T) {
	q, err := testParser().Parse("tag:a OR tag:b | tag:c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := q.(Boolean)
	if !ok || len(b.Clauses) != 3 || b.Clauses[2].Occur != Should {
		t.Fatalf("expected three Should clauses, got %v", q)
	}
}

func TestParseNotAnchorsOnMatchAll(t *testing.T) {
	q, err := testParser().Parse("NOT tag:a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := q.(Boolean)
	if !ok || len(b.Clauses) != 2 {
		t.Fatalf("expected MatchAll anchor plus MustNot, got %v", q)
	}
	if _, ok := b.Clauses[0].Query.(MatchAll); !ok || b.Clauses[1].Occur != MustNot {
		t.Errorf("unexpected clauses: %s", b.String())
	}
}

func TestParseMatchAll(t *testing.T) {
	q, err := testParser().Parse("*:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := q.(MatchAll); !ok {
		t.Fatalf("expected MatchAll, got %T", q)
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"raw:x",
		"nope:1",
		"tag:a AND",
		"(tag:a",
		"count:1.5",
		"count:5..1",
		"tag>3",
		"count:99999999999",
	} {
		if _, err := testParser().Parse(input); err == nil {
			t.Errorf("%q: expected error", input)
		}
	}
}

func TestPhraseRequiresText(t *testing.T) {
	p := testParser()
	if _, err := p.Phrase("tag", "x"); err == nil {
		t.Error("expected error for keyword field")
	}
	if _, err := p.Phrase("title", ""); err == nil {
		t.Error("expected error for empty phrase")
	}
	q, err := p.Phrase("map.val", "kuro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.String() != `map.val:~"kuro"` {
		t.Errorf("unexpected phrase %s", q.String())
	}
}

func TestFields(t *testing.T) {
	q, err := testParser().Parse("tag:a AND (count:1 OR tag:b) AND NOT score:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Fields(q)
	want := []string{"tag", "count", "score"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

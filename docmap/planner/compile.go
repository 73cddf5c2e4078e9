package planner

import (
	"fmt"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"
)

// Dialect carries what the compiler needs from an adapter.
type Dialect struct {
	Style    sqlbuilder.PlaceholderStyle
	SQL      storage.SQL
	FTS      storage.FTS
	Analyzer storage.Analyzer
}

// DialectOf reads the dialect of an opened adapter.
func DialectOf(a storage.Adapter, analyzer storage.Analyzer) Dialect {
	return Dialect{Style: a.PlaceholderStyle(), SQL: a.SQL(), FTS: a.FTS(), Analyzer: analyzer}
}

// Leaf is one SQL statement selecting doc_id.
type Leaf struct {
	SQL  string
	Args []any
}

// Node is either a Leaf or a boolean combination of child nodes.
type Node struct {
	Leaf    *Leaf
	Clauses []Child
}

type Child struct {
	Node  *Node
	Occur query.Occur
}

// Plan is a compiled query.
type Plan struct {
	Root         *Node
	ExplainSteps []string
}

// Compiler compiles queries into plans
type Compiler struct {
	dialect      Dialect
	explainSteps []string
	leafCounter  int
}

// Compile compiles q. Leaves become independent statements; boolean nodes
// are evaluated by the caller over the leaf results.
func Compile(d Dialect, q query.Query) (*Plan, error) {
	c := &Compiler{dialect: d}
	root, err := c.compile(q)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, ExplainSteps: c.explainSteps}, nil
}

func (c *Compiler) nextLeafName() string {
	name := fmt.Sprintf("leaf_%d", c.leafCounter)
	c.leafCounter++
	return name
}

func (c *Compiler) compile(q query.Query) (*Node, error) {
	switch e := q.(type) {
	case query.Boolean:
		if e.Empty() {
			return nil, fmt.Errorf("boolean query has no clauses")
		}
		n := &Node{}
		for _, cl := range e.Clauses {
			child, err := c.compile(cl.Query)
			if err != nil {
				return nil, err
			}
			n.Clauses = append(n.Clauses, Child{Node: child, Occur: cl.Occur})
		}
		c.explainSteps = append(c.explainSteps, fmt.Sprintf("BOOLEAN %s", e.String()))
		return n, nil
	case query.Term:
		return c.leaf(e, func(b *sqlbuilder.Builder) (string, error) {
			return fmt.Sprintf("SELECT doc_id FROM fields WHERE name = %s AND str = %s AND kind IN (%s, %s)",
				b.Arg(e.Field), b.Arg(e.Value), b.Arg(int(document.Keyword)), b.Arg(int(document.Text))), nil
		})
	case query.NumericRange:
		return c.leaf(e, func(b *sqlbuilder.Builder) (string, error) {
			return compileRange(b, e)
		})
	case query.Phrase:
		return c.leaf(e, func(b *sqlbuilder.Builder) (string, error) {
			return c.dialect.FTS.CompilePhrase(b, c.dialect.Analyzer, e.Field, e.Text)
		})
	case query.MatchAll:
		return c.leaf(e, func(*sqlbuilder.Builder) (string, error) {
			return c.dialect.SQL.AllDocIDs, nil
		})
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}
}

func (c *Compiler) leaf(q query.Query, build func(*sqlbuilder.Builder) (string, error)) (*Node, error) {
	b := sqlbuilder.New(c.dialect.Style)
	sql, err := build(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.String(), err)
	}
	c.explainSteps = append(c.explainSteps, fmt.Sprintf("%s %s", c.nextLeafName(), q.String()))
	return &Node{Leaf: &Leaf{SQL: sql, Args: b.Args()}}, nil
}

func compileRange(b *sqlbuilder.Builder, r query.NumericRange) (string, error) {
	var (
		col   string
		kinds [2]document.Kind
	)
	switch r.Kind {
	case document.Int, document.Long:
		col, kinds = "num_i", [2]document.Kind{document.Int, document.Long}
	case document.Float, document.Double:
		col, kinds = "num_f", [2]document.Kind{document.Float, document.Double}
	default:
		return "", fmt.Errorf("range on %s field", r.Kind)
	}
	sql := fmt.Sprintf("SELECT doc_id FROM fields WHERE name = %s AND kind IN (%s, %s)",
		b.Arg(r.Field), b.Arg(int(kinds[0])), b.Arg(int(kinds[1])))
	if r.Lo != nil {
		op := ">"
		if r.IncludeLo {
			op = ">="
		}
		sql += fmt.Sprintf(" AND %s %s %s", col, op, b.Arg(r.Lo))
	}
	if r.Hi != nil {
		op := "<"
		if r.IncludeHi {
			op = "<="
		}
		sql += fmt.Sprintf(" AND %s %s %s", col, op, b.Arg(r.Hi))
	}
	return sql, nil
}

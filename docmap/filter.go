package docmap

import (
	"reflect"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
)

// QueryBuilder turns prototype objects into queries. Every populated field
// of a prototype becomes a required clause: numbers match the closed range
// [v, v], keywords match exactly and text fields match as a phrase. Fields
// stored without an index never take part.
//
// A populated field is a non-nil pointer, slice or map, or a non-zero
// value. Each element of a list or set is required on its own, so a
// prototype holding {4} matches every document whose field contains 4.
// Map keys and values are required independently of each other; zero keys
// and zero values are ignored so either side can be left out.
type QueryBuilder[T any] struct {
	schema *Schema
}

func NewQueryBuilder[T any]() (*QueryBuilder[T], error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	return &QueryBuilder[T]{schema: s}, nil
}

// Filter returns the conjunction of the populated fields of proto. A
// prototype with nothing populated matches every document.
func (b *QueryBuilder[T]) Filter(proto *T) (query.Query, error) {
	if proto == nil {
		return query.MatchAll{}, nil
	}
	fb := filterBuilder{parser: query.NewParser(DefaultField, b.schema.Resolver())}
	if err := fb.nodes(b.schema.root, reflect.ValueOf(proto).Elem()); err != nil {
		return nil, err
	}
	if len(fb.clauses) == 0 {
		return query.MatchAll{}, nil
	}
	return query.Normalize(query.AllOf(fb.clauses...))
}

// FilterAny returns the union of the filters of protos.
func (b *QueryBuilder[T]) FilterAny(protos ...*T) (query.Query, error) {
	if len(protos) == 0 {
		return nil, New(ErrParse, "no prototypes")
	}
	var union query.Boolean
	for _, p := range protos {
		q, err := b.Filter(p)
		if err != nil {
			return nil, err
		}
		union.Add(q, query.Should)
	}
	return query.Normalize(union)
}

type filterBuilder struct {
	// parser is built per filter; parsers are not safe for concurrent use.
	parser  *query.Parser
	clauses []query.Query
}

func (fb *filterBuilder) nodes(nodes []*node, sv reflect.Value) error {
	for _, n := range nodes {
		fv := sv.FieldByIndex(n.index)
		var err error
		switch n.shape {
		case shapeScalar:
			if n.ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			} else if fv.IsZero() {
				continue
			}
			err = fb.add(n.name, n.kind, fv)
		case shapeChars:
			if fv.Len() == 0 {
				continue
			}
			err = fb.addString(n.name, n.kind, runesString(fv))
		case shapeBytes:
			// stored only
		case shapeList:
			if fv.Len() == 0 {
				continue
			}
			array := fv.Kind() == reflect.Array
			for i := 0; i < fv.Len() && err == nil; i++ {
				if array && fv.Index(i).IsZero() {
					continue
				}
				err = fb.add(n.name, n.kind, fv.Index(i))
			}
		case shapeSet:
			boolSet := fv.Type().Elem().Kind() == reflect.Bool
			for _, k := range sortedKeys(fv) {
				if boolSet && !fv.MapIndex(k).Bool() {
					continue
				}
				if err = fb.add(n.name, n.kind, k); err != nil {
					break
				}
			}
		case shapeMap:
			keys := sortedKeys(fv)
			for _, k := range keys {
				if k.IsZero() {
					continue
				}
				if err = fb.add(n.name+".key", n.kind, k); err != nil {
					break
				}
			}
			for _, k := range keys {
				if err != nil {
					break
				}
				if v := fv.MapIndex(k); !v.IsZero() {
					err = fb.add(n.name+".val", n.valKind, v)
				}
			}
		case shapeStruct:
			if n.ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			err = fb.nodes(n.children, fv)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (fb *filterBuilder) add(name string, kind document.Kind, v reflect.Value) error {
	switch kind {
	case document.Double:
		f := v.Float()
		fb.clauses = append(fb.clauses, query.FloatRange(name, kind, f, f, true, true))
	case document.Float:
		f := float64(float32(v.Float()))
		fb.clauses = append(fb.clauses, query.FloatRange(name, kind, f, f, true, true))
	case document.Int, document.Long:
		i := intValue(v)
		if kind == document.Int {
			i = int64(int32(i))
		}
		fb.clauses = append(fb.clauses, query.IntRange(name, kind, i, i, true, true))
	case document.Keyword, document.Text:
		return fb.addString(name, kind, scalarString(v))
	case document.Stored:
	}
	return nil
}

func (fb *filterBuilder) addString(name string, kind document.Kind, s string) error {
	switch kind {
	case document.Keyword:
		fb.clauses = append(fb.clauses, query.Term{Field: name, Value: s})
	case document.Text:
		if s == "" {
			return nil
		}
		q, err := fb.parser.Phrase(name, s)
		if err != nil {
			return ParseError("build phrase", err)
		}
		fb.clauses = append(fb.clauses, q)
	}
	return nil
}

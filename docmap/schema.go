package docmap

import (
	"reflect"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
)

// Multiplicity says whether a field holds one or many values per document.
type Multiplicity uint8

const (
	Single Multiplicity = iota
	Multiple
)

func (m Multiplicity) String() string {
	if m == Multiple {
		return "multiple"
	}
	return "single"
}

// FieldSchema describes one flattened field. Name is the dotted path of the
// field, e.g. "child.val" or "tags.key".
type FieldSchema struct {
	Name         string
	Kind         document.Kind
	Stored       bool
	Multiplicity Multiplicity
}

// Schema is the flat field layout of a struct type. It is built once per
// type and never changes.
type Schema struct {
	typ    reflect.Type
	fields []FieldSchema
	index  map[string]int
	root   []*node
}

// Type is the struct type the schema was derived from.
func (s *Schema) Type() reflect.Type { return s.typ }

// Fields returns the fields in column order.
func (s *Schema) Fields() []FieldSchema {
	out := make([]FieldSchema, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Len() int { return len(s.fields) }

// Field returns the i-th field.
func (s *Schema) Field(i int) FieldSchema { return s.fields[i] }

// Lookup finds a field by its dotted name.
func (s *Schema) Lookup(name string) (FieldSchema, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSchema{}, false
	}
	return s.fields[i], true
}

// Names returns the dotted field names in column order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Resolver resolves field kinds for query parsers.
func (s *Schema) Resolver() query.Resolver {
	return func(field string) (document.Kind, bool) {
		f, ok := s.Lookup(field)
		return f.Kind, ok
	}
}

func (s *Schema) add(f FieldSchema) int {
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return len(s.fields) - 1
}

// shape is how a struct field maps onto document fields.
type shape uint8

const (
	// shapeScalar is a single value, possibly behind a pointer.
	shapeScalar shape = iota
	// shapeChars is a []rune written as one keyword.
	shapeChars
	// shapeBytes is a []byte written as one stored blob.
	shapeBytes
	// shapeList is a slice or array of scalars.
	shapeList
	// shapeSet is a map used as a set: map[T]struct{} or map[T]bool.
	shapeSet
	// shapeMap is a map of scalars, split into .key and .val fields.
	shapeMap
	// shapeStruct is a nested struct or pointer to struct.
	shapeStruct
)

// node is the introspected form of one struct field.
type node struct {
	goName string
	name   string
	index  []int
	typ    reflect.Type
	shape  shape

	// ptr is set for *scalar and *struct fields.
	ptr bool
	// elem is the scalar type of values, list elements, set members or map
	// keys; val is the scalar type of map values.
	elem, val reflect.Type
	// kind and valKind are the document kinds of elem and val.
	kind, valKind document.Kind
	// field is the schema position; for maps the .val field follows it.
	field int

	children []*node
	// factory returns a pointer to a new zero struct for shapeStruct.
	factory func() reflect.Value
}

// Package document defines the flat field documents stored in an index.
package document

import "fmt"

// Kind is the closed set of field kinds an index understands.
type Kind uint8

const (
	Double Kind = iota + 1
	Float
	Int
	Long
	Stored
	Keyword
	Text
)

func (k Kind) String() string {
	switch k {
	case Double:
		return "double"
	case Float:
		return "float"
	case Int:
		return "int"
	case Long:
		return "long"
	case Stored:
		return "stored"
	case Keyword:
		return "keyword"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "double":
		return Double, nil
	case "float":
		return Float, nil
	case "int":
		return Int, nil
	case "long":
		return Long, nil
	case "stored":
		return Stored, nil
	case "keyword", "string":
		return Keyword, nil
	case "text":
		return Text, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

// Numeric reports whether values of the kind are compared numerically.
func (k Kind) Numeric() bool {
	return k == Double || k == Float || k == Int || k == Long
}

// Indexed reports whether values of the kind can be queried.
func (k Kind) Indexed() bool {
	return k != Stored
}

// Field is a single named value. A document holds one Field per value, so
// multi-valued fields repeat the same name.
//
// Value holds float64 for Double, float32 for Float, int32 for Int, int64 for
// Long, string for Keyword and Text, and string or []byte for Stored.
type Field struct {
	Name  string
	Kind  Kind
	Value any
}

// NewField validates that v has the Go type expected for kind.
func NewField(name string, kind Kind, v any) (Field, error) {
	f := Field{Name: name, Kind: kind, Value: v}
	return f, f.Validate()
}

func (f Field) Validate() error {
	ok := false
	switch f.Kind {
	case Double:
		_, ok = f.Value.(float64)
	case Float:
		_, ok = f.Value.(float32)
	case Int:
		_, ok = f.Value.(int32)
	case Long:
		_, ok = f.Value.(int64)
	case Keyword, Text:
		_, ok = f.Value.(string)
	case Stored:
		switch f.Value.(type) {
		case string, []byte:
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("field %s: value %T does not fit kind %s", f.Name, f.Value, f.Kind)
	}
	return nil
}

// String renders the value the way it is written to tabular output.
func (f Field) String() string {
	switch v := f.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Document is an ordered list of fields. It is never edited once written to
// an index; updates replace the whole document.
type Document []Field

// Get returns the first field named name.
func (d Document) Get(name string) (Field, bool) {
	for _, f := range d {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Values returns every value stored under name, in write order.
func (d Document) Values(name string) []any {
	var out []any
	for _, f := range d {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether any field is named name.
func (d Document) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// HasPrefix reports whether any field name starts with prefix.
func (d Document) HasPrefix(prefix string) bool {
	for _, f := range d {
		if len(f.Name) >= len(prefix) && f.Name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Names returns the distinct field names in first-seen order.
func (d Document) Names() []string {
	seen := make(map[string]struct{}, len(d))
	var out []string
	for _, f := range d {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		out = append(out, f.Name)
	}
	return out
}

package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nonibytes/docmap/docmap/document"
)

// Creator decides the column names and kinds of an imported table.
type Creator interface {
	// Names returns the column names. header is the first line when the
	// input has one and nil otherwise; width is the number of columns.
	Names(header []string, width int) []string
	// Kinds returns the column kinds given the first data row.
	Kinds(first []string) ([]document.Kind, error)
}

// AutoDetect derives column kinds from the first data row. A value
// holding '.' is tried as a float then a double; any other value as an int
// then a long. Everything else is text.
type AutoDetect struct{}

func (AutoDetect) Names(header []string, width int) []string {
	return namesOr(header, width)
}

func (AutoDetect) Kinds(first []string) ([]document.Kind, error) {
	kinds := make([]document.Kind, len(first))
	for i, v := range first {
		kinds[i] = Detect(v)
	}
	return kinds, nil
}

// Detect returns the kind AutoDetect assigns to v.
func Detect(v string) document.Kind {
	if strings.ContainsRune(v, '.') {
		// Out of float32 range is a range error here, so such values fall
		// through to Double rather than becoming an infinite Float.
		if _, err := strconv.ParseFloat(v, 32); err == nil {
			return document.Float
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return document.Double
		}
		return document.Text
	}
	if _, err := strconv.ParseInt(v, 10, 32); err == nil {
		return document.Int
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return document.Long
	}
	return document.Text
}

// Standard indexes every column as text.
type Standard struct{}

func (Standard) Names(header []string, width int) []string {
	return namesOr(header, width)
}

func (Standard) Kinds(first []string) ([]document.Kind, error) {
	kinds := make([]document.Kind, len(first))
	for i := range kinds {
		kinds[i] = document.Text
	}
	return kinds, nil
}

// UserDefined uses fixed column kinds and, when set, fixed column names
// that take precedence over a header line.
type UserDefined struct {
	ColumnKinds []document.Kind
	ColumnNames []string
}

func (u UserDefined) Names(header []string, width int) []string {
	if len(u.ColumnNames) > 0 {
		return u.ColumnNames
	}
	return namesOr(header, width)
}

func (u UserDefined) Kinds(first []string) ([]document.Kind, error) {
	if len(first) != len(u.ColumnKinds) {
		return nil, fmt.Errorf("row has %d columns, %d kinds defined", len(first), len(u.ColumnKinds))
	}
	return u.ColumnKinds, nil
}

func namesOr(header []string, width int) []string {
	if header != nil {
		return header
	}
	return Positional(width)
}

// Positional returns the column names "0", "1", ... for width columns.
func Positional(width int) []string {
	names := make([]string, width)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// Value converts a raw column value to the Go value stored for kind.
func Value(kind document.Kind, raw string) (any, error) {
	switch kind {
	case document.Double:
		return strconv.ParseFloat(raw, 64)
	case document.Float:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, err
		}
		return float32(v), nil
	case document.Int:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case document.Long:
		return strconv.ParseInt(raw, 10, 64)
	case document.Stored, document.Keyword, document.Text:
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown kind %s", kind)
	}
}

// Row builds the document of one row.
func Row(names []string, kinds []document.Kind, values []string) (document.Document, error) {
	if len(values) != len(names) || len(values) != len(kinds) {
		return nil, fmt.Errorf("row has %d columns, expected %d", len(values), len(names))
	}
	doc := make(document.Document, 0, len(values))
	for i, raw := range values {
		v, err := Value(kinds[i], raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", names[i], err)
		}
		doc = append(doc, document.Field{Name: names[i], Kind: kinds[i], Value: v})
	}
	return doc, nil
}

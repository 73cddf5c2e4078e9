// Package sqlbuilder collects statement arguments and renders the matching
// placeholders for a SQL dialect.
package sqlbuilder

import (
	"strconv"
	"strings"
)

type PlaceholderStyle int

const (
	// PlaceholderQuestion renders every argument as ?, as SQLite expects.
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders numbered $1, $2, ... for PostgreSQL.
	PlaceholderDollar
)

// Builder is single use: one Builder per statement.
type Builder struct {
	Style PlaceholderStyle
	args  []any
}

func New(style PlaceholderStyle) *Builder {
	return &Builder{Style: style}
}

// Arg appends v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	if b.Style == PlaceholderDollar {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// Args returns the arguments in placeholder order; never nil.
func (b *Builder) Args() []any {
	if b.args == nil {
		return []any{}
	}
	return b.args
}

func (b *Builder) Len() int { return len(b.args) }

// List adds every id as an argument and returns the comma separated
// placeholders, for use inside IN (...).
func (b *Builder) List(ids []int64) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.Arg(id))
	}
	return sb.String()
}

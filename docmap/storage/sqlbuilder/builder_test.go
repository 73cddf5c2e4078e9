package sqlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgPlaceholders(t *testing.T) {
	q := New(PlaceholderQuestion)
	assert.Equal(t, "??", q.Arg("a")+q.Arg(1))
	assert.Equal(t, []any{"a", 1}, q.Args())

	d := New(PlaceholderDollar)
	assert.Empty(t, d.Args())
	d.Arg("a")
	assert.Equal(t, "$2", d.Arg("b"))
	assert.Equal(t, 2, d.Len())
}

func TestList(t *testing.T) {
	d := New(PlaceholderDollar)
	d.Arg("x")
	assert.Equal(t, "$2, $3, $4", d.List([]int64{4, 5, 6}))
	assert.Equal(t, []any{"x", int64(4), int64(5), int64(6)}, d.Args())
	assert.Empty(t, New(PlaceholderQuestion).List(nil))
}

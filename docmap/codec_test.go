package docmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/docmap/docmap/document"
)

type child struct {
	Val  int
	Name string
}

type sibling struct {
	Label string
	Score float64
}

type everything struct {
	Str     string
	F64     float64
	F32     float32
	I8      int8
	I16     int16
	I32     int32
	U8      uint8
	U16     uint16
	Flag    bool
	I       int
	I64     int64
	U       uint
	U32     uint32
	U64     uint64
	PInt    *int
	PStr    *string
	Chars   []rune `docmap:",chars"`
	Blob    []byte
	Arr     [3]int
	List    []string
	Floats  []float32
	Set     map[int]struct{}
	BoolSet map[string]bool `docmap:",set"`
	Map     map[int]string  `docmap:",textval"`
	Child   child
	PChild  *child
	Other   *sibling
	Note    string `docmap:"note,noindex"`
	Body    string `docmap:",text"`
	Ignored string `docmap:"-"`
	hidden  int
}

func fullObject() *everything {
	n, s := 42, "boxed"
	return &everything{
		Str: "keyword", F64: 0.1, F32: 0.1,
		I8: -8, I16: -16, I32: -32, U8: 8, U16: 16, Flag: true,
		I: -1 << 40, I64: math.MinInt64, U: 7, U32: math.MaxUint32, U64: math.MaxUint64,
		PInt: &n, PStr: &s,
		Chars:   []rune("chars"),
		Blob:    []byte{0, 1, 2, 255},
		Arr:     [3]int{1, 2, 3},
		List:    []string{"b", "a", "b"},
		Floats:  []float32{0.5, 0.25},
		Set:     map[int]struct{}{3: {}, 1: {}},
		BoolSet: map[string]bool{"x": true, "y": true},
		Map:     map[int]string{3: "black cat", 4: "kuro"},
		Child:   child{Val: 5, Name: "c"},
		PChild:  &child{Val: 6, Name: "p"},
		Other:   &sibling{Label: "s", Score: 2.5},
		Note:    "not indexed",
		Body:    "some text",
	}
}

func newTestCodec[T any](t *testing.T, opts CodecOptions) *Codec[T] {
	t.Helper()
	c, err := NewCodec[T](opts)
	require.NoError(t, err)
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	in := fullObject()
	doc, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodecEncodeLayout(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	doc, err := c.Encode(fullObject())
	require.NoError(t, err)

	f, ok := doc.Get("Flag")
	require.True(t, ok)
	assert.Equal(t, document.Field{Name: "Flag", Kind: document.Int, Value: int32(1)}, f)

	f, _ = doc.Get("note")
	assert.Equal(t, document.Stored, f.Kind)
	assert.Equal(t, "not indexed", f.Value)

	f, _ = doc.Get("Chars")
	assert.Equal(t, document.Field{Name: "Chars", Kind: document.Keyword, Value: "chars"}, f)

	assert.Equal(t, []any{int64(3), int64(4)}, doc.Values("Map.key"))
	assert.Equal(t, []any{"black cat", "kuro"}, doc.Values("Map.val"))
	assert.Equal(t, []any{"b", "a", "b"}, doc.Values("List"))
	assert.Equal(t, []any{int64(1), int64(3)}, doc.Values("Set"))
	assert.Equal(t, []any{int64(6)}, doc.Values("PChild.Val"))
	assert.False(t, doc.Has("Ignored"))
	assert.False(t, doc.Has("hidden"))
}

func TestCodecOmitsNil(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	doc, err := c.Encode(&everything{})
	require.NoError(t, err)

	for _, name := range []string{"PInt", "PStr", "Chars", "Blob", "List", "Set", "BoolSet", "Map.key", "PChild.Val", "Other.Label"} {
		assert.False(t, doc.Has(name), name)
	}
	assert.True(t, doc.Has("Str"))
	assert.True(t, doc.Has("Child.Val"))

	out, err := c.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, &everything{}, out)
}

func TestCodecFalseSetMembersDropped(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	doc, err := c.Encode(&everything{BoolSet: map[string]bool{"on": true, "off": false}})
	require.NoError(t, err)
	assert.Equal(t, []any{"on"}, doc.Values("BoolSet"))
}

func TestCodecInitializeEmpty(t *testing.T) {
	c := newTestCodec[everything](t, CodecOptions{InitializeEmptyObject: true, InitializeEmptyMultiples: true})
	out, err := c.Decode(nil)
	require.NoError(t, err)

	require.NotNil(t, out.PChild)
	require.NotNil(t, out.Other)
	assert.Equal(t, child{}, *out.PChild)
	assert.NotNil(t, out.List)
	assert.Empty(t, out.List)
	assert.NotNil(t, out.Set)
	assert.NotNil(t, out.Map)
	assert.NotNil(t, out.Blob)
	assert.Nil(t, out.PInt)
}

func TestCodecPointerStructOnlyWhenPresent(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	out, err := c.Decode(document.Document{
		{Name: "Other.Score", Kind: document.Double, Value: 1.5},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Other)
	assert.Equal(t, 1.5, out.Other.Score)
	assert.Nil(t, out.PChild)
}

func TestCodecDecodeIsBestEffort(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	out, err := c.Decode(document.Document{
		{Name: "Str", Kind: document.Keyword, Value: "kept"},
		{Name: "I8", Kind: document.Long, Value: int64(1000)},
		{Name: "Map.key", Kind: document.Long, Value: int64(1)},
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrDecode))
	require.NotNil(t, out)
	assert.Equal(t, "kept", out.Str)
	assert.Zero(t, out.I8)
}

func TestCodecSiblingComposites(t *testing.T) {
	type pair struct {
		Left  child
		Right child
	}
	c := newTestCodec[pair](t, DefaultCodecOptions())
	in := &pair{Left: child{Val: 1, Name: "l"}, Right: child{Val: 2, Name: "r"}}
	doc, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Left.Val", "Left.Name", "Right.Val", "Right.Name"}, doc.Names())

	out, err := c.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodecEncodeNil(t *testing.T) {
	c := newTestCodec[everything](t, DefaultCodecOptions())
	_, err := c.Encode(nil)
	assert.Error(t, err)
}

package docmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
)

type pet struct {
	Name   string
	Weight float64
	Ratio  float32
	Tags   []int
	Names  map[int]string `docmap:",textval"`
	Bio    string         `docmap:",text"`
	Secret string         `docmap:",noindex"`
	Owner  *child
}

func newBuilder(t *testing.T) *QueryBuilder[pet] {
	t.Helper()
	b, err := NewQueryBuilder[pet]()
	require.NoError(t, err)
	return b
}

func TestFilterScalars(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Name: "rex", Weight: 0.1})
	require.NoError(t, err)
	assert.Equal(t, query.AllOf(
		query.Term{Field: "Name", Value: "rex"},
		query.FloatRange("Weight", document.Double, 0.1, 0.1, true, true),
	), q)
}

func TestFilterFloatUsesStoredPrecision(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Ratio: 0.1})
	require.NoError(t, err)
	want := float64(float32(0.1))
	assert.Equal(t, query.FloatRange("Ratio", document.Float, want, want, true, true), q)
}

func TestFilterMultipleRequiresEveryElement(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Tags: []int{4, 5}})
	require.NoError(t, err)
	assert.Equal(t, query.AllOf(
		query.IntRange("Tags", document.Long, 4, 4, true, true),
		query.IntRange("Tags", document.Long, 5, 5, true, true),
	), q)
}

func TestFilterZeroSliceElementIsCriterion(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Tags: []int{0}})
	require.NoError(t, err)
	assert.Equal(t, query.IntRange("Tags", document.Long, 0, 0, true, true), q)
}

type slots struct {
	Slots [3]int
}

func TestFilterSkipsZeroArrayElements(t *testing.T) {
	b, err := NewQueryBuilder[slots]()
	require.NoError(t, err)
	q, err := b.Filter(&slots{Slots: [3]int{0, 7, 0}})
	require.NoError(t, err)
	assert.Equal(t, query.IntRange("Slots", document.Long, 7, 7, true, true), q)

	q, err = b.Filter(&slots{})
	require.NoError(t, err)
	assert.Equal(t, query.MatchAll{}, q)
}

func TestFilterMapSidesAreIndependent(t *testing.T) {
	b := newBuilder(t)

	q, err := b.Filter(&pet{Names: map[int]string{15: ""}})
	require.NoError(t, err)
	assert.Equal(t, query.IntRange("Names.key", document.Long, 15, 15, true, true), q)

	q, err = b.Filter(&pet{Names: map[int]string{0: "black"}})
	require.NoError(t, err)
	assert.Equal(t, query.Phrase{Field: "Names.val", Text: "black"}, q)

	q, err = b.Filter(&pet{Names: map[int]string{3: "black cat"}})
	require.NoError(t, err)
	assert.Equal(t, query.AllOf(
		query.IntRange("Names.key", document.Long, 3, 3, true, true),
		query.Phrase{Field: "Names.val", Text: "black cat"},
	), q)
}

func TestFilterSkipsNoIndexFields(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Secret: "hidden"})
	require.NoError(t, err)
	assert.Equal(t, query.MatchAll{}, q)
}

func TestFilterNested(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{Bio: "good dog", Owner: &child{Name: "ann"}})
	require.NoError(t, err)
	assert.Equal(t, query.AllOf(
		query.Phrase{Field: "Bio", Text: "good dog"},
		query.Term{Field: "Owner.Name", Value: "ann"},
	), q)
}

func TestFilterAnyUnion(t *testing.T) {
	q, err := newBuilder(t).FilterAny(&pet{Name: "a"}, &pet{Name: "b", Tags: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, query.AnyOf(
		query.Term{Field: "Name", Value: "a"},
		query.AllOf(
			query.Term{Field: "Name", Value: "b"},
			query.IntRange("Tags", document.Long, 1, 1, true, true),
		),
	), q)

	_, err = newBuilder(t).FilterAny()
	assert.Error(t, err)
}

func TestFilterEmptyPrototype(t *testing.T) {
	q, err := newBuilder(t).Filter(&pet{})
	require.NoError(t, err)
	assert.Equal(t, query.MatchAll{}, q)
}

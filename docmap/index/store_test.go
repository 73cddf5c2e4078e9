package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/postgres"
	"github.com/nonibytes/docmap/docmap/storage/sqlite"
)

func newStore(t *testing.T, mutate ...func(*Options)) *Store {
	t.Helper()
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	s, err := Open(context.Background(), sqlite.New(filepath.Join(t.TempDir(), "index.db")), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(key string, fields ...document.Field) document.Document {
	d := document.Document{{Name: "key", Kind: document.Keyword, Value: key}}
	return append(d, fields...)
}

func keyTerm(key string) query.Term {
	return query.Term{Field: "key", Value: key}
}

func put(t *testing.T, s *Store, d document.Document) {
	t.Helper()
	key, ok := d.Get("key")
	require.True(t, ok)
	require.NoError(t, s.AddOrUpdate(context.Background(), keyTerm(key.Value.(string)), d))
}

func search(t *testing.T, s *Store, q query.Query) []string {
	t.Helper()
	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)
	hits, err := s.Search(context.Background(), snap, q, 0)
	require.NoError(t, err)
	var keys []string
	for _, h := range hits {
		f, _ := h.Document.Get("key")
		keys = append(keys, f.Value.(string))
	}
	return keys
}

func TestWritesInvisibleUntilCommit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a"))
	assert.Empty(t, search(t, s, query.MatchAll{}))

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"a"}, search(t, s, query.MatchAll{}))
	assert.EqualValues(t, 1, s.NumDocs())
	assert.EqualValues(t, 1, s.Generation())
}

func TestAddOrUpdateReplaces(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a", document.Field{Name: "v", Kind: document.Long, Value: int64(1)}))
	put(t, s, doc("a", document.Field{Name: "v", Kind: document.Long, Value: int64(2)}))
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)
	hits, err := s.Search(ctx, snap, keyTerm("a"), 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []any{int64(2)}, hits[0].Document.Values("v"))
}

func TestDeleteAndRollback(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a"))
	put(t, s, doc("b"))
	require.NoError(t, s.Commit(ctx))

	n, err := s.Delete(ctx, keyTerm("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Rollback())
	require.NoError(t, s.Commit(ctx))
	assert.ElementsMatch(t, []string{"a", "b"}, search(t, s, query.MatchAll{}))

	_, err = s.Delete(ctx, keyTerm("a"))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"b"}, search(t, s, query.MatchAll{}))

	require.NoError(t, s.DeleteAll(ctx))
	require.NoError(t, s.Commit(ctx))
	assert.Empty(t, search(t, s, query.MatchAll{}))
	assert.EqualValues(t, 0, s.NumDocs())
}

func TestDeleteRequiresField(t *testing.T) {
	s := newStore(t)
	_, err := s.Delete(context.Background(), query.Term{Value: "x"})
	require.Error(t, err)
}

func TestBooleanEvaluation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tag := func(v string) document.Field { return document.Field{Name: "tag", Kind: document.Keyword, Value: v} }

	put(t, s, doc("a", tag("red"), tag("big")))
	put(t, s, doc("b", tag("red")))
	put(t, s, doc("c", tag("blue"), tag("big")))
	require.NoError(t, s.Commit(ctx))

	red := query.Term{Field: "tag", Value: "red"}
	big := query.Term{Field: "tag", Value: "big"}

	assert.Equal(t, []string{"a"}, search(t, s, query.AllOf(red, big)))
	assert.Equal(t, []string{"a", "b", "c"}, search(t, s, query.AnyOf(red, big)))

	var notRed query.Boolean
	notRed.Add(query.MatchAll{}, query.Must)
	notRed.Add(red, query.MustNot)
	assert.Equal(t, []string{"c"}, search(t, s, notRed))

	// Should clauses are optional next to a Must clause.
	var mixed query.Boolean
	mixed.Add(big, query.Must)
	mixed.Add(query.Term{Field: "tag", Value: "none"}, query.Should)
	assert.Equal(t, []string{"a", "c"}, search(t, s, mixed))

	// Only MustNot clauses exclude from every document.
	var only query.Boolean
	only.Add(big, query.MustNot)
	assert.Equal(t, []string{"b"}, search(t, s, only))
}

func TestNumericRanges(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a",
		document.Field{Name: "n", Kind: document.Int, Value: int32(3)},
		document.Field{Name: "f", Kind: document.Float, Value: float32(0.1)},
		document.Field{Name: "d", Kind: document.Double, Value: 2.5}))
	put(t, s, doc("b",
		document.Field{Name: "n", Kind: document.Int, Value: int32(7)},
		document.Field{Name: "d", Kind: document.Double, Value: -1.0}))
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, []string{"a"}, search(t, s, query.IntRange("n", document.Int, 3, 3, true, true)))
	assert.Equal(t, []string{"a", "b"}, search(t, s, query.IntRange("n", document.Int, 3, 7, true, true)))
	assert.Equal(t, []string{"b"}, search(t, s, query.IntRange("n", document.Int, 3, 7, false, true)))
	assert.Equal(t, []string{"b"}, search(t, s, query.NumericRange{Field: "d", Kind: document.Double, Hi: 0.0}))

	// A Float value matches the widened form of its own literal.
	p := query.NewParser("key", query.KindsResolver(map[string]document.Kind{"f": document.Float}))
	q, err := p.Parse("f:0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, search(t, s, q))
}

func TestPhraseNgram(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	title := func(v string) document.Field { return document.Field{Name: "title", Kind: document.Text, Value: v} }

	put(t, s, doc("a", title("The black cat sat")))
	put(t, s, doc("b", title("A black dog")))
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, []string{"a"}, search(t, s, query.Phrase{Field: "title", Text: "black cat"}))
	assert.Equal(t, []string{"a", "b"}, search(t, s, query.Phrase{Field: "title", Text: "black"}))
	assert.Empty(t, search(t, s, query.Phrase{Field: "title", Text: "Black"}))
	// Shorter than a trigram.
	assert.Equal(t, []string{"a"}, search(t, s, query.Phrase{Field: "title", Text: "at"}))
}

func TestStoredValuesRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a",
		document.Field{Name: "raw", Kind: document.Stored, Value: []byte{0, 1, 2}},
		document.Field{Name: "note", Kind: document.Stored, Value: "plain"},
		document.Field{Name: "empty", Kind: document.Stored, Value: []byte{}}))
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)
	hits, err := s.Search(ctx, snap, keyTerm("a"), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	d := hits[0].Document
	assert.Equal(t, []any{[]byte{0, 1, 2}}, d.Values("raw"))
	assert.Equal(t, []any{"plain"}, d.Values("note"))
	assert.Equal(t, []any{[]byte{}}, d.Values("empty"))
	assert.Equal(t, []string{"key", "raw", "note", "empty"}, d.Names())
}

func TestSnapshotIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put(t, s, doc("a"))
	require.NoError(t, s.Commit(ctx))

	old, err := s.Snapshots().Acquire()
	require.NoError(t, err)

	put(t, s, doc("b"))
	require.NoError(t, s.Commit(ctx))

	n, err := s.Count(ctx, old, query.MatchAll{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, old.NumDocs())

	cur, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	n, err = s.Count(ctx, cur, query.MatchAll{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Greater(t, cur.Generation(), old.Generation())

	assert.EqualValues(t, 2, s.Snapshots().Stats().Open)
	s.Snapshots().Release(old)
	assert.EqualValues(t, 1, s.Snapshots().Stats().Open)
	s.Snapshots().Release(cur)
	assert.EqualValues(t, 0, s.Snapshots().Stats().Acquired)
}

func TestCommitWithoutChangesKeepsGeneration(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx))
	assert.EqualValues(t, 0, s.Generation())

	_, err := s.Delete(ctx, keyTerm("missing"))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))
	assert.EqualValues(t, 0, s.Generation())
}

func TestAsyncRefreshCoalesces(t *testing.T) {
	s := newStore(t, func(o *Options) { o.AsyncRefresh = true })
	ctx := context.Background()

	for i := range 20 {
		put(t, s, doc(string(rune('a'+i))))
		require.NoError(t, s.Commit(ctx))
	}
	s.Snapshots().Wait()
	require.NoError(t, s.Snapshots().Refresh(ctx))

	assert.Len(t, search(t, s, query.MatchAll{}), 20)
	st := s.Snapshots().Stats()
	assert.LessOrEqual(t, st.Refreshes, uint64(21))
	assert.EqualValues(t, 1, st.Open)
}

func TestSearchPage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := range 25 {
		put(t, s, doc(string(rune('A'+i)), document.Field{Name: "tag", Kind: document.Keyword, Value: "x"}))
	}
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)

	q := query.Term{Field: "tag", Value: "x"}
	seen := map[int64]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := s.SearchPage(ctx, snap, q, 10, cursor)
		require.NoError(t, err)
		pages++
		for _, h := range page.Hits {
			assert.False(t, seen[h.ID], "duplicate hit %d", h.ID)
			seen[h.ID] = true
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 25)

	first, err := s.SearchPage(ctx, snap, q, 10, "")
	require.NoError(t, err)
	_, err = s.SearchPage(ctx, snap, query.MatchAll{}, 10, first.NextCursor)
	require.ErrorIs(t, err, ErrCursor)
	_, err = s.SearchPage(ctx, snap, q, 10, "not a cursor")
	require.ErrorIs(t, err, ErrCursor)
}

func TestAllWalksInIndexOrder(t *testing.T) {
	s := newStore(t, func(o *Options) { o.LoadBatch = 3 })
	ctx := context.Background()
	want := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, k := range want {
		put(t, s, doc(k))
	}
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)

	var got []string
	for h, err := range s.All(ctx, snap) {
		require.NoError(t, err)
		f, _ := h.Document.Get("key")
		got = append(got, f.Value.(string))
	}
	assert.Equal(t, want, got)
}

func TestApplyBatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	put(t, s, doc("gone"))
	require.NoError(t, s.Commit(ctx))

	b := NewBatch()
	b.AddOrUpdate(keyTerm("a"), doc("a"))
	b.AddOrUpdate(keyTerm("b"), doc("b"))
	b.Delete(keyTerm("gone"))
	n, err := s.Apply(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, []string{"a", "b"}, search(t, s, query.MatchAll{}))
}

func TestDiscover(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tag := func(v string) document.Field { return document.Field{Name: "tag", Kind: document.Keyword, Value: v} }
	n := func(v int64) document.Field { return document.Field{Name: "n", Kind: document.Long, Value: v} }

	put(t, s, doc("a", tag("x"), tag("y"), n(1)))
	put(t, s, doc("b", tag("x"), n(2)))
	put(t, s, doc("c", n(3), n(4)))
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshots().Acquire()
	require.NoError(t, err)
	defer s.Snapshots().Release(snap)

	fields, err := s.Fields(ctx, snap)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, FieldOverview{Field: "key", Kind: document.Keyword, DocCount: 3}, fields[0])
	assert.Equal(t, FieldOverview{Field: "n", Kind: document.Long, DocCount: 3, Multi: true}, fields[1])
	assert.Equal(t, FieldOverview{Field: "tag", Kind: document.Keyword, DocCount: 2, Multi: true}, fields[2])

	values, err := s.Values(ctx, snap, "tag", 10)
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{Value: "x", Count: 2}, {Value: "y", Count: 1}}, values)

	st, err := s.Stats(ctx, snap, "n")
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.Count)
	require.NotNil(t, st.Min)
	require.NotNil(t, st.Median)
	assert.InDelta(t, 1, *st.Min, 1e-9)
	assert.InDelta(t, 4, *st.Max, 1e-9)
	assert.InDelta(t, 2.5, *st.Avg, 1e-9)
	assert.InDelta(t, 2.5, *st.Median, 1e-9)
}

func TestSaveAndReopen(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	put(t, s, doc("a", document.Field{Name: "title", Kind: document.Text, Value: "saved text"}))
	require.NoError(t, s.Commit(ctx))

	dest := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, s.Save(ctx, dest))

	copied, err := Open(ctx, sqlite.New(dest), DefaultOptions())
	require.NoError(t, err)
	defer copied.Close()
	assert.EqualValues(t, 1, copied.NumDocs())
	assert.Equal(t, []string{"a"}, search(t, copied, query.Phrase{Field: "title", Text: "saved"}))
}

func TestOpenTempRemovesFilesOnClose(t *testing.T) {
	s, err := OpenTemp(context.Background(), DefaultOptions())
	require.NoError(t, err)
	dir := filepath.Dir(s.Location())
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Close())
	_, err = s.Snapshots().Acquire()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Add(context.Background(), doc("a")), ErrClosed)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("DOCMAP_PG_DSN")
	if dsn == "" {
		t.Skip("DOCMAP_PG_DSN not set")
	}
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Ephemeral = true
	s, err := Open(ctx, postgres.New(dsn, "docmap_test"), opts)
	require.NoError(t, err)
	defer s.Close()

	put(t, s, doc("a", document.Field{Name: "title", Kind: document.Text, Value: "The black cat"}))
	put(t, s, doc("b", document.Field{Name: "n", Kind: document.Int, Value: int32(5)}))
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, []string{"a"}, search(t, s, query.Phrase{Field: "title", Text: "black cat"}))
	assert.Equal(t, []string{"b"}, search(t, s, query.IntRange("n", document.Int, 5, 5, true, true)))
}

func TestCollector(t *testing.T) {
	s := newStore(t)
	put(t, s, doc("a"))
	put(t, s, doc("b"))
	require.NoError(t, s.CommitAndRefresh(context.Background()))

	c := s.Collector()
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	expected := fmt.Sprintf(`
# HELP docmap_index_documents Number of documents as of the last commit
# TYPE docmap_index_documents gauge
docmap_index_documents{index=%q} 2
`, s.Location())
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "docmap_index_documents"))
}

func foreignDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreign.db")
	db, err := sql.Open(sqlite.DriverModernc, path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func tableNames(t *testing.T, path string) []string {
	t.Helper()
	db, err := sql.Open(sqlite.DriverModernc, path)
	require.NoError(t, err)
	defer db.Close()
	names, err := storage.QueryStrings(context.Background(), db,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	require.NoError(t, err)
	return names
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	ctx := context.Background()
	tests := map[string][]string{
		"own meta table": {
			"CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)",
			"INSERT INTO meta VALUES ('docmap_magic', 'someone-else')",
			"CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)",
		},
		"no meta table": {
			"CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)",
		},
	}
	for name, stmts := range tests {
		t.Run(name, func(t *testing.T) {
			path := foreignDB(t, stmts...)
			before := tableNames(t, path)

			_, err := Open(ctx, sqlite.New(path), DefaultOptions())
			require.ErrorIs(t, err, storage.ErrForeign)
			assert.Equal(t, before, tableNames(t, path))
		})
	}
}

func TestReopenKeepsAnalyzer(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	opts := DefaultOptions()
	opts.Analyzer = storage.AnalyzerWord
	s, err := Open(ctx, sqlite.New(path), opts)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, sqlite.New(path), DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, storage.AnalyzerWord, s.Analyzer())
}

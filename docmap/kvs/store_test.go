package kvs

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/storage/sqlite"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = docmap.NoopLogger()
	return opts
}

func openStrings(t *testing.T) *Store[string, string] {
	t.Helper()
	s, err := NewString[string](context.Background(), sqlite.New(filepath.Join(t.TempDir(), "kvs.db")), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetOverwrite(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", "aval"))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aval", v)
	assert.Equal(t, 1, s.Size())

	require.NoError(t, s.Put(ctx, "a", "other"))
	v, _, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "other", v)
	assert.Equal(t, 1, s.Size())

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIteratorReleasesOnExhaustion(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	s.SetAutoCommit(false)
	require.NoError(t, s.Put(ctx, "a", "1"))
	require.NoError(t, s.Put(ctx, "b", "2"))
	require.NoError(t, s.Commit(ctx))

	before := s.Index().Snapshots().Stats().Acquired
	it, err := s.Iterator(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Size())
	assert.Equal(t, before+1, s.Index().Snapshots().Stats().Acquired)

	var keys []string
	for it.HasNext() {
		e, err := it.Next()
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.False(t, it.HasNext())
	assert.Equal(t, before, s.Index().Snapshots().Stats().Acquired)

	_, err = it.Next()
	assert.True(t, docmap.IsKind(err, docmap.ErrNotFound))
}

func TestIteratorRemove(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	require.NoError(t, s.PutAll(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))

	it, err := s.Iterator(ctx)
	require.NoError(t, err)
	for it.HasNext() {
		e, err := it.Next()
		require.NoError(t, err)
		if e.Key != "b" {
			require.NoError(t, it.Remove())
		}
	}
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
	assert.Equal(t, 1, s.Size())
}

func TestRemoveAndClear(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	require.NoError(t, s.PutAll(ctx, map[string]string{"a": "1", "b": "2"}))

	v, ok, err := s.Remove(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok, err = s.Remove(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.ContainsKey(ctx, "b")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.ContainsValue(ctx, "2", func(a, b string) bool { return a == b })
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Clear(ctx))
	assert.True(t, s.IsEmpty())
	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManualCommit(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	s.SetAutoCommit(false)
	s.SetAsyncRefresh(false)

	require.NoError(t, s.Put(ctx, "a", "1"))
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.IsEmpty())

	require.NoError(t, s.Commit(ctx))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNumericStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ints, err := NewInt[int](ctx, sqlite.New(filepath.Join(dir, "int.db")), testOptions())
	require.NoError(t, err)
	defer ints.Close()
	require.NoError(t, ints.Put(ctx, -5, 1<<30))
	v, ok, err := ints.Get(ctx, -5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1<<30), v)

	doubles, err := NewDouble[float64](ctx, sqlite.New(filepath.Join(dir, "double.db")), testOptions())
	require.NoError(t, err)
	defer doubles.Close()
	require.NoError(t, doubles.Put(ctx, 0.1, 0.1))
	d, ok, err := doubles.Get(ctx, 0.1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.1, d)

	floats, err := NewFloat[string](ctx, sqlite.New(filepath.Join(dir, "float.db")), testOptions())
	require.NoError(t, err)
	defer floats.Close()
	require.NoError(t, floats.Put(ctx, "f", 0.1))
	f, _, err := floats.Get(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, float32(0.1), f)

	shorts, err := NewShort[uint8](ctx, sqlite.New(filepath.Join(dir, "short.db")), testOptions())
	require.NoError(t, err)
	defer shorts.Close()
	require.NoError(t, shorts.Put(ctx, 255, -300))
	sv, _, err := shorts.Get(ctx, 255)
	require.NoError(t, err)
	assert.Equal(t, int16(-300), sv)

	longs, err := NewLong[int64](ctx, sqlite.New(filepath.Join(dir, "long.db")), testOptions())
	require.NoError(t, err)
	defer longs.Close()
	require.NoError(t, longs.PutAll(ctx, map[int64]int64{1: -1, 2: 1 << 62}))
	keys, err := longs.Keys(ctx)
	require.NoError(t, err)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	assert.Equal(t, []int64{1, 2}, keys)
	values, err := longs.Values(ctx)
	require.NoError(t, err)
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	assert.Equal(t, []int64{-1, 1 << 62}, values)
}

type profile struct {
	Name   string
	Tags   []string
	Scores map[string]float64
	Parent *profile
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewObject[string, profile](ctx, sqlite.New(filepath.Join(t.TempDir(), "obj.db")), testOptions())
	require.NoError(t, err)
	defer s.Close()

	in := profile{
		Name:   "kuro",
		Tags:   []string{"cat", "black"},
		Scores: map[string]float64{"speed": 0.5},
		Parent: &profile{Name: "mike"},
	}
	require.NoError(t, s.Put(ctx, "k", in))
	out, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestDecodeFailureIsSkipped(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "good", "v"))
	require.NoError(t, s.Index().Add(ctx, document.Document{
		{Name: ValueField, Kind: document.Stored, Value: "orphan"},
	}))
	require.NoError(t, s.Commit(ctx))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, keys)
}

func TestAsyncRefreshReadsLatest(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	require.True(t, s.AsyncRefresh())
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put(ctx, k, k))
	}
	v, ok, err := s.Get(ctx, "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d", v)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenTemp[string](ctx, Codec[string](StringCodec{}), testOptions())
	require.NoError(t, err)
	loc := s.Index().Location()
	require.NoError(t, s.Close())

	err = s.Put(ctx, "a", "b")
	assert.True(t, docmap.IsKind(err, docmap.ErrClosed))
	_, _, err = s.Get(ctx, "a")
	assert.True(t, docmap.IsKind(err, docmap.ErrClosed))
	assert.NoFileExists(t, loc)
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "0.1", formatKey(float32(0.1)))
	assert.Equal(t, "-7", formatKey(int8(-7)))
	assert.Equal(t, "18446744073709551615", formatKey(uint64(1<<64-1)))

	k, err := parseKey[uint16]("65535")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), k)
	_, err = parseKey[uint8]("256")
	assert.Error(t, err)
}

func TestConcurrentPutGet(t *testing.T) {
	s := openStrings(t)
	ctx := context.Background()
	const workers, perWorker = 8, 25

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				k := fmt.Sprintf("w%d-%d", w, i)
				if err := s.Put(ctx, k, k); err != nil {
					return err
				}
				v, ok, err := s.Get(ctx, k)
				if err != nil {
					return err
				}
				if !ok || v != k {
					return fmt.Errorf("get %s: got %q, %t", k, v, ok)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, workers*perWorker, s.Size())

	it, err := s.Iterator(ctx)
	require.NoError(t, err)
	n := 0
	for it.HasNext() {
		_, err := it.Next()
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, workers*perWorker, n)
	assert.Equal(t, int64(0), s.Index().Snapshots().Stats().Acquired)
}

func TestAsyncRefreshOptionReachesIndex(t *testing.T) {
	opts := testOptions()
	opts.AsyncRefresh = false
	opts.Index.AsyncRefresh = true
	s, err := NewString[string](context.Background(), sqlite.New(filepath.Join(t.TempDir(), "kvs.db")), opts)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.AsyncRefresh())
	assert.False(t, s.Index().Options().AsyncRefresh)
}

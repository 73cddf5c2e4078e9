// Package kvs is a map-like key/value store on top of an index.
//
// Every entry is a document with two stored fields: the key, written as a
// keyword so it can be matched exactly, and the value. Writes become visible
// after Commit, which AutoCommit triggers after every write.
package kvs

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
)

const (
	KeyField   = "key"
	ValueField = "val"
)

// Options configures a Store.
type Options struct {
	Index index.Options
	// AutoCommit commits after every Put, PutAll, Remove and Clear.
	AutoCommit bool
	// AsyncRefresh lets Commit return before readers see the commit. Reads
	// through the Store still wait for it. It overrides Index.AsyncRefresh.
	AsyncRefresh bool
	Logger       *docmap.Logger
}

func DefaultOptions() Options {
	return Options{
		Index:        index.DefaultOptions(),
		AutoCommit:   true,
		AsyncRefresh: true,
	}
}

// Entry is one key/value pair.
type Entry[K Key, V any] struct {
	Key   K
	Value V
}

// Store maps keys of type K to values of type V.
type Store[K Key, V any] struct {
	index *index.Store
	codec Codec[V]
	log   *docmap.Logger

	autoCommit   atomic.Bool
	asyncRefresh atomic.Bool
}

// Open opens a store through adapter with codec for values.
func Open[K Key, V any](ctx context.Context, adapter storage.Adapter, codec Codec[V], opts Options) (*Store[K, V], error) {
	s, iopts := newStore[K](codec, opts)
	ix, err := index.Open(ctx, adapter, iopts)
	if err != nil {
		return nil, docmap.StoreError("open index", err)
	}
	s.index = ix
	return s, nil
}

// OpenTemp opens a store on an ephemeral index that Close removes.
func OpenTemp[K Key, V any](ctx context.Context, codec Codec[V], opts Options) (*Store[K, V], error) {
	s, iopts := newStore[K](codec, opts)
	ix, err := index.OpenTemp(ctx, iopts)
	if err != nil {
		return nil, docmap.StoreError("open index", err)
	}
	s.index = ix
	return s, nil
}

func newStore[K Key, V any](codec Codec[V], opts Options) (*Store[K, V], index.Options) {
	log := opts.Logger
	if log == nil {
		log = docmap.NewLogger(nil)
	}
	log = log.WithType(fmt.Sprintf("kvs[%T]", *new(V)))
	iopts := opts.Index
	iopts.AsyncRefresh = opts.AsyncRefresh
	if iopts.Logger == nil {
		iopts.Logger = log.Logger
	}
	s := &Store[K, V]{codec: codec, log: log}
	s.autoCommit.Store(opts.AutoCommit)
	s.asyncRefresh.Store(opts.AsyncRefresh)
	return s, iopts
}

// NewString opens a store of string values.
func NewString[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, string], error) {
	return Open[K](ctx, adapter, Codec[string](StringCodec{}), opts)
}

func NewShort[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, int16], error) {
	return Open[K](ctx, adapter, Codec[int16](ShortCodec{}), opts)
}

func NewInt[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, int32], error) {
	return Open[K](ctx, adapter, Codec[int32](IntCodec{}), opts)
}

func NewLong[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, int64], error) {
	return Open[K](ctx, adapter, Codec[int64](LongCodec{}), opts)
}

func NewFloat[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, float32], error) {
	return Open[K](ctx, adapter, Codec[float32](FloatCodec{}), opts)
}

func NewDouble[K Key](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, float64], error) {
	return Open[K](ctx, adapter, Codec[float64](DoubleCodec{}), opts)
}

// NewObject opens a store whose values are msgpack-encoded.
func NewObject[K Key, V any](ctx context.Context, adapter storage.Adapter, opts Options) (*Store[K, V], error) {
	return Open[K](ctx, adapter, Codec[V](MsgpackCodec[V]{}), opts)
}

// Index exposes the underlying index.
func (s *Store[K, V]) Index() *index.Store { return s.index }

func (s *Store[K, V]) SetAutoCommit(on bool) { s.autoCommit.Store(on) }

func (s *Store[K, V]) AutoCommit() bool { return s.autoCommit.Load() }

func (s *Store[K, V]) SetAsyncRefresh(on bool) { s.asyncRefresh.Store(on) }

func (s *Store[K, V]) AsyncRefresh() bool { return s.asyncRefresh.Load() }

func keyTerm[K Key](k K) query.Term {
	return query.Term{Field: KeyField, Value: formatKey(k)}
}

func (s *Store[K, V]) document(k K, v V) (document.Document, error) {
	val, err := s.codec.Encode(ValueField, v)
	if err != nil {
		return nil, docmap.Wrap(docmap.ErrConfig, "encode value", err)
	}
	return document.Document{
		{Name: KeyField, Kind: document.Keyword, Value: formatKey(k)},
		val,
	}, nil
}

func (s *Store[K, V]) entry(doc document.Document) (Entry[K, V], error) {
	var e Entry[K, V]
	kf, ok := doc.Get(KeyField)
	if !ok {
		return e, docmap.DecodeError(KeyField, "missing key", nil)
	}
	k, err := parseKey[K](kf.String())
	if err != nil {
		return e, docmap.DecodeError(KeyField, "cannot convert stored key", err)
	}
	e.Key = k
	vf, ok := doc.Get(ValueField)
	if !ok {
		return e, docmap.DecodeError(ValueField, "missing value", nil)
	}
	if e.Value, err = s.codec.Decode(vf); err != nil {
		return e, docmap.DecodeError(ValueField, "cannot convert stored value", err)
	}
	return e, nil
}

func (s *Store[K, V]) maybeCommit(ctx context.Context) error {
	if !s.autoCommit.Load() {
		return nil
	}
	return s.Commit(ctx)
}

// Put stores v under k, replacing any previous value.
func (s *Store[K, V]) Put(ctx context.Context, k K, v V) error {
	doc, err := s.document(k, v)
	if err != nil {
		return err
	}
	if err := s.index.AddOrUpdate(ctx, keyTerm(k), doc); err != nil {
		return docmap.StoreError("put", err)
	}
	return s.maybeCommit(ctx)
}

// PutAll stores every entry of m with a single commit at the end. Entries
// written before a failure stay written.
func (s *Store[K, V]) PutAll(ctx context.Context, m map[K]V) error {
	for k, v := range m {
		doc, err := s.document(k, v)
		if err != nil {
			return err
		}
		if err := s.index.AddOrUpdate(ctx, keyTerm(k), doc); err != nil {
			return docmap.StoreError("put", err)
		}
	}
	return s.maybeCommit(ctx)
}

// read runs fn on the latest committed snapshot.
func (s *Store[K, V]) read(ctx context.Context, fn func(*index.Snapshot) error) error {
	snaps := s.index.Snapshots()
	if err := snaps.Refresh(ctx); err != nil {
		return docmap.StoreError("refresh", err)
	}
	snap, err := snaps.Acquire()
	if err != nil {
		return docmap.StoreError("acquire snapshot", err)
	}
	defer snaps.Release(snap)
	return fn(snap)
}

func (s *Store[K, V]) lookup(ctx context.Context, k K) (document.Document, bool, error) {
	var doc document.Document
	err := s.read(ctx, func(snap *index.Snapshot) error {
		hits, err := s.index.Search(ctx, snap, keyTerm(k), 1)
		if err != nil {
			return docmap.StoreError("get", err)
		}
		if len(hits) > 0 {
			doc = hits[0].Document
		}
		return nil
	})
	return doc, doc != nil, err
}

// Get returns the committed value of k.
func (s *Store[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	var zero V
	doc, ok, err := s.lookup(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := s.entry(doc)
	if err != nil {
		return zero, false, err
	}
	return e.Value, true, nil
}

func (s *Store[K, V]) ContainsKey(ctx context.Context, k K) (bool, error) {
	_, ok, err := s.lookup(ctx, k)
	return ok, err
}

// ContainsValue scans every entry for v.
func (s *Store[K, V]) ContainsValue(ctx context.Context, v V, equal func(a, b V) bool) (bool, error) {
	for e, err := range s.All(ctx) {
		if err != nil {
			return false, err
		}
		if equal(e.Value, v) {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes k and returns its committed value, if any.
func (s *Store[K, V]) Remove(ctx context.Context, k K) (V, bool, error) {
	v, ok, err := s.Get(ctx, k)
	if err != nil {
		return v, false, err
	}
	if !ok {
		return v, false, nil
	}
	if _, err := s.index.Delete(ctx, keyTerm(k)); err != nil {
		return v, true, docmap.StoreError("remove", err)
	}
	return v, true, s.maybeCommit(ctx)
}

// Clear removes every entry.
func (s *Store[K, V]) Clear(ctx context.Context) error {
	if err := s.index.DeleteAll(ctx); err != nil {
		return docmap.StoreError("clear", err)
	}
	return s.maybeCommit(ctx)
}

// Size is the number of entries at the last commit.
func (s *Store[K, V]) Size() int { return int(s.index.NumDocs()) }

func (s *Store[K, V]) IsEmpty() bool { return s.Size() <= 0 }

// Commit makes writes durable and visible, refreshing in the background
// when AsyncRefresh is set.
func (s *Store[K, V]) Commit(ctx context.Context) error {
	var err error
	if s.asyncRefresh.Load() {
		err = s.index.CommitAsync(ctx)
	} else {
		err = s.index.CommitAndRefresh(ctx)
	}
	return docmap.StoreError("commit", err)
}

// All yields every committed entry in index order from one snapshot.
func (s *Store[K, V]) All(ctx context.Context) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		err := s.read(ctx, func(snap *index.Snapshot) error {
			for hit, err := range s.index.All(ctx, snap) {
				if err != nil {
					return docmap.StoreError("iterate", err)
				}
				if !yield(s.entry(hit.Document)) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry[K, V]{}, err)
		}
	}
}

// Entries returns every entry. Entries that fail to decode are logged and
// left out.
func (s *Store[K, V]) Entries(ctx context.Context) ([]Entry[K, V], error) {
	var out []Entry[K, V]
	i := 0
	for e, err := range s.All(ctx) {
		if err != nil && !docmap.IsKind(err, docmap.ErrDecode) {
			return out, err
		}
		if err != nil {
			s.log.LogSkipped(ctx, "entries", i, err)
		} else {
			out = append(out, e)
		}
		i++
	}
	return out, nil
}

func (s *Store[K, V]) Keys(ctx context.Context) ([]K, error) {
	entries, err := s.Entries(ctx)
	keys := make([]K, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, err
}

func (s *Store[K, V]) Values(ctx context.Context) ([]V, error) {
	entries, err := s.Entries(ctx)
	values := make([]V, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values, err
}

// Save writes a consistent copy of the committed store to dest.
func (s *Store[K, V]) Save(ctx context.Context, dest string) error {
	return docmap.StoreError("save", s.index.Save(ctx, dest))
}

// Close waits for background refreshes and closes the index, removing it
// if it is ephemeral.
func (s *Store[K, V]) Close() error {
	return docmap.StoreError("close", s.index.Close())
}

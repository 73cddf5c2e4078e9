package docmap

import (
	"context"
	"errors"
	"iter"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
)

// ObjectDB stores values of T as documents and finds them by example.
type ObjectDB[T any] struct {
	store   *index.Store
	codec   *Codec[T]
	builder *QueryBuilder[T]
	log     *Logger
}

// OpenObjectDB introspects T and opens an index through adapter. Schema
// errors are reported before anything is opened.
func OpenObjectDB[T any](ctx context.Context, adapter storage.Adapter, opts DBOptions) (*ObjectDB[T], error) {
	db, iopts, err := newObjectDB[T](opts)
	if err != nil {
		return nil, err
	}
	if db.store, err = index.Open(ctx, adapter, iopts); err != nil {
		return nil, StoreError("open index", err)
	}
	return db, nil
}

// OpenTempObjectDB opens an ObjectDB on an ephemeral index that Close
// removes.
func OpenTempObjectDB[T any](ctx context.Context, opts DBOptions) (*ObjectDB[T], error) {
	db, iopts, err := newObjectDB[T](opts)
	if err != nil {
		return nil, err
	}
	if db.store, err = index.OpenTemp(ctx, iopts); err != nil {
		return nil, StoreError("open index", err)
	}
	return db, nil
}

func newObjectDB[T any](opts DBOptions) (*ObjectDB[T], index.Options, error) {
	codec, err := NewCodec[T](opts.Codec)
	if err != nil {
		return nil, index.Options{}, err
	}
	log := defaultLogger(opts.Logger).WithType(codec.Schema().Type().String())
	iopts := opts.Index
	if iopts.Logger == nil {
		iopts.Logger = log.Logger
	}
	return &ObjectDB[T]{
		codec:   codec,
		builder: &QueryBuilder[T]{schema: codec.Schema()},
		log:     log,
	}, iopts, nil
}

func (db *ObjectDB[T]) Schema() *Schema { return db.codec.Schema() }

func (db *ObjectDB[T]) Codec() *Codec[T] { return db.codec }

func (db *ObjectDB[T]) Builder() *QueryBuilder[T] { return db.builder }

// Store exposes the underlying index.
func (db *ObjectDB[T]) Store() *index.Store { return db.store }

// Add writes obj. It becomes visible after Commit.
func (db *ObjectDB[T]) Add(ctx context.Context, obj *T) error {
	doc, err := db.codec.Encode(obj)
	if err != nil {
		return err
	}
	return StoreError("add object", db.store.Add(ctx, doc))
}

// AddAll writes objs one by one and returns how many were written. Objects
// that cannot be encoded are logged and skipped; a store failure stops the
// batch, leaving earlier objects written.
func (db *ObjectDB[T]) AddAll(ctx context.Context, objs []*T) (int, error) {
	added := 0
	for i, obj := range objs {
		doc, err := db.codec.Encode(obj)
		if err != nil {
			db.log.LogSkipped(ctx, "add objects", i, err)
			continue
		}
		if err := db.store.Add(ctx, doc); err != nil {
			db.log.LogBatch(ctx, "add objects", len(objs), len(objs)-added)
			return added, StoreError("add object", err)
		}
		added++
	}
	db.log.LogBatch(ctx, "add objects", len(objs), len(objs)-added)
	return added, nil
}

// Commit makes written objects visible.
func (db *ObjectDB[T]) Commit(ctx context.Context) error {
	return StoreError("commit", db.store.Commit(ctx))
}

// Search returns up to n objects matching the populated fields of proto,
// in index order. n <= 0 returns every match.
func (db *ObjectDB[T]) Search(ctx context.Context, proto *T, n int) ([]*T, error) {
	q, err := db.builder.Filter(proto)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, q, n)
}

// SearchAny returns up to n objects matching any of protos.
func (db *ObjectDB[T]) SearchAny(ctx context.Context, protos []*T, n int) ([]*T, error) {
	q, err := db.builder.FilterAny(protos...)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, q, n)
}

// Count returns the number of objects matching proto.
func (db *ObjectDB[T]) Count(ctx context.Context, proto *T) (int, error) {
	q, err := db.builder.Filter(proto)
	if err != nil {
		return 0, err
	}
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return 0, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	n, err := db.store.Count(ctx, snap, q)
	return n, StoreError("count", err)
}

// Query runs q and decodes up to n matches.
func (db *ObjectDB[T]) Query(ctx context.Context, q query.Query, n int) ([]*T, error) {
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return nil, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	hits, err := db.store.Search(ctx, snap, q, n)
	if err != nil {
		return nil, StoreError("search", err)
	}
	return db.convertHits(ctx, hits), nil
}

// SearchPage returns one page of objects matching proto. Pass the returned
// NextCursor with the same prototype to get the following page.
func (db *ObjectDB[T]) SearchPage(ctx context.Context, proto *T, opts SearchOptions) (SearchPage[*T], error) {
	q, err := db.builder.Filter(proto)
	if err != nil {
		return SearchPage[*T]{}, err
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return SearchPage[*T]{}, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	page, err := db.store.SearchPage(ctx, snap, q, opts.Limit, opts.Cursor)
	if err != nil {
		return SearchPage[*T]{}, pageError(err)
	}
	return SearchPage[*T]{
		Items:      db.convertHits(ctx, page.Hits),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

// Convert decodes docs. A document that fails to decode yields the
// partially decoded object and a logged warning.
func (db *ObjectDB[T]) Convert(ctx context.Context, docs []document.Document) []*T {
	out := make([]*T, len(docs))
	failed := 0
	for i, d := range docs {
		obj, err := db.codec.Decode(d)
		if err != nil {
			failed++
			db.log.LogSkipped(ctx, "convert", i, err)
		}
		out[i] = obj
	}
	db.log.LogBatch(ctx, "convert", len(docs), failed)
	return out
}

func (db *ObjectDB[T]) convertHits(ctx context.Context, hits []index.Hit) []*T {
	docs := make([]document.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	return db.Convert(ctx, docs)
}

// All yields every stored object in index order from one snapshot.
// Decode failures are yielded with the partial object.
func (db *ObjectDB[T]) All(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		snap, err := db.store.Snapshots().Acquire()
		if err != nil {
			yield(nil, StoreError("acquire snapshot", err))
			return
		}
		defer db.store.Snapshots().Release(snap)
		for hit, err := range db.store.All(ctx, snap) {
			if err != nil {
				yield(nil, StoreError("iterate", err))
				return
			}
			if !yield(db.codec.Decode(hit.Document)) {
				return
			}
		}
	}
}

// Save writes a consistent copy of the committed index to dest.
func (db *ObjectDB[T]) Save(ctx context.Context, dest string) error {
	return StoreError("save", db.store.Save(ctx, dest))
}

func (db *ObjectDB[T]) Close() error {
	return StoreError("close", db.store.Close())
}

func pageError(err error) error {
	if errors.Is(err, index.ErrCursor) {
		return Wrap(ErrParse, "invalid cursor", err)
	}
	return StoreError("search page", err)
}

package kvs

import (
	"context"
	"iter"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/index"
)

// Iterator walks the entries of one snapshot in index order. It holds the
// snapshot until it is exhausted or closed.
type Iterator[K Key, V any] struct {
	store *Store[K, V]
	ctx   context.Context
	snap  *index.Snapshot
	next  func() (index.Hit, error, bool)
	stop  func()

	size    int
	count   int
	current Entry[K, V]
	valid   bool
}

// Iterator refreshes to the latest commit and acquires a snapshot for the
// whole traversal.
func (s *Store[K, V]) Iterator(ctx context.Context) (*Iterator[K, V], error) {
	snaps := s.index.Snapshots()
	if err := snaps.Refresh(ctx); err != nil {
		return nil, docmap.StoreError("refresh", err)
	}
	snap, err := snaps.Acquire()
	if err != nil {
		return nil, docmap.StoreError("acquire snapshot", err)
	}
	next, stop := iter.Pull2(s.index.All(ctx, snap))
	return &Iterator[K, V]{
		store: s,
		ctx:   ctx,
		snap:  snap,
		next:  next,
		stop:  stop,
		size:  snap.NumDocs(),
	}, nil
}

// Size is the number of entries in the snapshot.
func (it *Iterator[K, V]) Size() int { return it.size }

// HasNext reports whether Next has more entries. It releases the snapshot
// once the iterator is exhausted.
func (it *Iterator[K, V]) HasNext() bool {
	more := it.count < it.size
	if !more {
		it.Close()
	}
	return more
}

// Next returns the next entry. A decode failure is returned with the
// partially decoded entry and does not end the iteration.
func (it *Iterator[K, V]) Next() (Entry[K, V], error) {
	if it.snap == nil {
		return Entry[K, V]{}, docmap.New(docmap.ErrNotFound, "iterator exhausted")
	}
	hit, err, ok := it.next()
	it.count++
	if !ok {
		it.Close()
		return Entry[K, V]{}, docmap.New(docmap.ErrNotFound, "iterator exhausted")
	}
	if err != nil {
		it.Close()
		return Entry[K, V]{}, docmap.StoreError("iterate", err)
	}
	e, err := it.store.entry(hit.Document)
	it.current, it.valid = e, err == nil
	return e, err
}

// Remove deletes the entry last returned by Next through the store.
func (it *Iterator[K, V]) Remove() error {
	if !it.valid {
		return docmap.New(docmap.ErrNotFound, "no current entry")
	}
	it.valid = false
	_, _, err := it.store.Remove(it.ctx, it.current.Key)
	return err
}

// Close releases the snapshot. It is safe to call more than once.
func (it *Iterator[K, V]) Close() {
	if it.snap == nil {
		return
	}
	it.stop()
	it.store.index.Snapshots().Release(it.snap)
	it.snap = nil
}

package index

import (
	"context"
	"errors"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/query"
)

type batchOpKind int

const (
	batchPut batchOpKind = iota
	batchDelete
)

type batchOp struct {
	kind batchOpKind
	term query.Term
	doc  document.Document
}

// Batch collects writes that are applied under a single writer lock.
// A batch is not atomic: writes applied before a failing one stay pending
// in the writer until the next Commit or Rollback.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch {
	return &Batch{}
}

// AddOrUpdate queues a replace of every document matching term by doc.
func (b *Batch) AddOrUpdate(term query.Term, doc document.Document) {
	b.ops = append(b.ops, batchOp{kind: batchPut, term: term, doc: doc})
}

// Delete queues a delete of every document matching term.
func (b *Batch) Delete(term query.Term) {
	b.ops = append(b.ops, batchOp{kind: batchDelete, term: term})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) Empty() bool {
	return len(b.ops) == 0
}

// Apply runs every queued write and reports how many were applied.
func (s *Store) Apply(ctx context.Context, b *Batch) (int, error) {
	if b == nil || b.Empty() {
		return 0, nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range b.ops {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		n, err := s.deleteMatching(ctx, tx, op.term)
		if err != nil {
			return count, err
		}
		if n > 0 {
			s.dirty = true
		}
		if op.kind == batchPut {
			if _, err := s.insertDoc(ctx, tx, op.doc); err != nil {
				return count, err
			}
			s.dirty = true
		}
		count++
	}
	return count, nil
}

var errEmptyTerm = errors.New("term has no field")

func validTerm(t query.Term) error {
	if t.Field == "" {
		return errEmptyTerm
	}
	return nil
}

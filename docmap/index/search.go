package index

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/planner"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"
)

// querier is satisfied by *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Match returns the ids of documents matching q, in index order.
func (s *Store) Match(ctx context.Context, snap *Snapshot, q query.Query) (*roaring64.Bitmap, error) {
	plan, err := planner.Compile(s.dialect, q)
	if err != nil {
		return nil, err
	}
	snap.mu.Lock()
	defer snap.mu.Unlock()
	return s.evaluate(ctx, snap.tx, plan.Root)
}

// Explain returns the compiled steps of q.
func (s *Store) Explain(q query.Query) ([]string, error) {
	plan, err := planner.Compile(s.dialect, q)
	if err != nil {
		return nil, err
	}
	return plan.ExplainSteps, nil
}

// Count returns the number of documents matching q.
func (s *Store) Count(ctx context.Context, snap *Snapshot, q query.Query) (int, error) {
	ids, err := s.Match(ctx, snap, q)
	if err != nil {
		return 0, err
	}
	return int(ids.GetCardinality()), nil
}

// Search returns up to n documents matching q in index order. n <= 0
// returns every match.
func (s *Store) Search(ctx context.Context, snap *Snapshot, q query.Query, n int) ([]Hit, error) {
	ids, err := s.Match(ctx, snap, q)
	if err != nil {
		return nil, err
	}
	return s.loadIDs(ctx, snap, firstN(ids, 0, n))
}

func (s *Store) loadIDs(ctx context.Context, snap *Snapshot, ids []int64) ([]Hit, error) {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	return s.load(ctx, snap.tx, ids)
}

// firstN returns up to n ids greater than after.
func firstN(ids *roaring64.Bitmap, after int64, n int) []int64 {
	var out []int64
	it := ids.Iterator()
	if after > 0 {
		it.AdvanceIfNeeded(uint64(after) + 1)
	}
	for it.HasNext() && (n <= 0 || len(out) < n) {
		out = append(out, int64(it.Next()))
	}
	return out
}

func (s *Store) evaluate(ctx context.Context, q querier, n *planner.Node) (*roaring64.Bitmap, error) {
	if n.Leaf != nil {
		return s.evalLeaf(ctx, q, n.Leaf)
	}
	var must, should, mustNot []*roaring64.Bitmap
	for _, c := range n.Clauses {
		bm, err := s.evaluate(ctx, q, c.Node)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.Must:
			must = append(must, bm)
		case query.Should:
			should = append(should, bm)
		case query.MustNot:
			mustNot = append(mustNot, bm)
		}
	}

	var res *roaring64.Bitmap
	switch {
	case len(must) > 0:
		res = must[0]
		for _, bm := range must[1:] {
			res.And(bm)
		}
	case len(should) > 0:
		res = roaring64.New()
		for _, bm := range should {
			res.Or(bm)
		}
	default:
		all, err := s.evalLeaf(ctx, q, &planner.Leaf{SQL: s.dialect.SQL.AllDocIDs})
		if err != nil {
			return nil, err
		}
		res = all
	}
	for _, bm := range mustNot {
		res.AndNot(bm)
	}
	return res, nil
}

func (s *Store) evalLeaf(ctx context.Context, q querier, leaf *planner.Leaf) (*roaring64.Bitmap, error) {
	rows, err := q.QueryContext(ctx, leaf.SQL, leaf.Args...)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", leaf.SQL, err)
	}
	defer rows.Close()
	bm := roaring64.New()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		bm.Add(uint64(id))
	}
	return bm, rows.Err()
}

// load fetches documents by id, keeping the order of ids.
func (s *Store) load(ctx context.Context, q querier, ids []int64) ([]Hit, error) {
	hits := make([]Hit, 0, len(ids))
	for start := 0; start < len(ids); start += s.opts.LoadBatch {
		end := min(start+s.opts.LoadBatch, len(ids))
		chunk, err := s.loadChunk(ctx, q, ids[start:end])
		if err != nil {
			return nil, err
		}
		hits = append(hits, chunk...)
	}
	return hits, nil
}

func (s *Store) loadChunk(ctx context.Context, q querier, ids []int64) ([]Hit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := sqlbuilder.New(s.dialect.Style)
	stmt := "SELECT doc_id, name, kind, str, num_i, num_f, blob FROM fields WHERE doc_id IN (" +
		b.List(ids) + ") ORDER BY doc_id, ord"
	rows, err := q.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]document.Document, len(ids))
	for rows.Next() {
		var (
			docID int64
			name  string
			kind  int
			r     row
		)
		if err := rows.Scan(&docID, &name, &kind, &r.str, &r.numI, &r.numF, &r.blob); err != nil {
			return nil, err
		}
		f, err := fromRow(name, document.Kind(kind), r)
		if err != nil {
			return nil, err
		}
		byID[docID] = append(byID[docID], f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		// A document without fields is still a document.
		hits = append(hits, Hit{ID: id, Document: byID[id]})
	}
	return hits, nil
}

// All walks every live document of snap in index order.
func (s *Store) All(ctx context.Context, snap *Snapshot) iter.Seq2[Hit, error] {
	return func(yield func(Hit, error) bool) {
		var after int64
		for {
			hits, err := s.Page(ctx, snap, after, s.opts.LoadBatch)
			if err != nil {
				yield(Hit{}, err)
				return
			}
			if len(hits) == 0 {
				return
			}
			for _, h := range hits {
				if !yield(h, nil) {
					return
				}
			}
			after = hits[len(hits)-1].ID
		}
	}
}

// Page returns up to limit documents with ids greater than after.
func (s *Store) Page(ctx context.Context, snap *Snapshot, after int64, limit int) ([]Hit, error) {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	ids, err := s.pageIDs(ctx, snap.tx, after, limit)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, snap.tx, ids)
}

func (s *Store) pageIDs(ctx context.Context, q querier, after int64, limit int) ([]int64, error) {
	b := sqlbuilder.New(s.dialect.Style)
	stmt := fmt.Sprintf("SELECT id FROM docs WHERE id > %s ORDER BY id LIMIT %s", b.Arg(after), b.Arg(limit))
	rows, err := q.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("page documents: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

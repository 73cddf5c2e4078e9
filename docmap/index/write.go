package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/planner"
	"github.com/nonibytes/docmap/docmap/query"
)

// row is the column layout of one field value.
type row struct {
	str  sql.NullString
	numI sql.NullInt64
	numF sql.NullFloat64
	blob []byte
}

// storedBytes marks Stored values written as blobs in num_i.
const storedBytes = 1

func toRow(f document.Field) (row, error) {
	if err := f.Validate(); err != nil {
		return row{}, err
	}
	var r row
	switch f.Kind {
	case document.Double:
		r.numF = sql.NullFloat64{Float64: f.Value.(float64), Valid: true}
	case document.Float:
		r.numF = sql.NullFloat64{Float64: float64(f.Value.(float32)), Valid: true}
	case document.Int:
		r.numI = sql.NullInt64{Int64: int64(f.Value.(int32)), Valid: true}
	case document.Long:
		r.numI = sql.NullInt64{Int64: f.Value.(int64), Valid: true}
	case document.Keyword, document.Text:
		r.str = sql.NullString{String: f.Value.(string), Valid: true}
	case document.Stored:
		switch v := f.Value.(type) {
		case []byte:
			r.blob = v
			if r.blob == nil {
				r.blob = []byte{}
			}
			r.numI = sql.NullInt64{Int64: storedBytes, Valid: true}
		case string:
			r.str = sql.NullString{String: v, Valid: true}
			r.numI = sql.NullInt64{Int64: 0, Valid: true}
		}
	}
	return r, nil
}

func fromRow(name string, kind document.Kind, r row) (document.Field, error) {
	f := document.Field{Name: name, Kind: kind}
	switch kind {
	case document.Double:
		f.Value = r.numF.Float64
	case document.Float:
		f.Value = float32(r.numF.Float64)
	case document.Int:
		f.Value = int32(r.numI.Int64)
	case document.Long:
		f.Value = r.numI.Int64
	case document.Keyword, document.Text:
		f.Value = r.str.String
	case document.Stored:
		if r.numI.Int64 == storedBytes {
			b := r.blob
			if b == nil {
				b = []byte{}
			}
			f.Value = b
		} else {
			f.Value = r.str.String
		}
	default:
		return f, fmt.Errorf("field %s: unknown kind %d", name, kind)
	}
	return f, nil
}

func (s *Store) insertDoc(ctx context.Context, tx *sql.Tx, doc document.Document) (int64, error) {
	sqlt := s.adapter.SQL()
	rows := make([]row, len(doc))
	for i, f := range doc {
		r, err := toRow(f)
		if err != nil {
			return 0, err
		}
		rows[i] = r
	}
	var docID int64
	if err := tx.QueryRowContext(ctx, sqlt.InsertDoc).Scan(&docID); err != nil {
		return 0, fmt.Errorf("insert doc: %w", err)
	}
	fts := s.adapter.FTS()
	for i, f := range doc {
		r := rows[i]
		var fieldID int64
		err := tx.QueryRowContext(ctx, sqlt.InsertField,
			docID, i, f.Name, int(f.Kind), r.str, r.numI, r.numF, r.blob).Scan(&fieldID)
		if err != nil {
			return 0, fmt.Errorf("insert field %s: %w", f.Name, err)
		}
		if f.Kind == document.Text {
			if err := fts.IndexValue(ctx, tx, fieldID, r.str.String); err != nil {
				return 0, fmt.Errorf("index text %s: %w", f.Name, err)
			}
		}
	}
	return docID, nil
}

func (s *Store) deleteMatching(ctx context.Context, tx *sql.Tx, term query.Term) (int, error) {
	if err := validTerm(term); err != nil {
		return 0, err
	}
	plan, err := planner.Compile(s.dialect, term)
	if err != nil {
		return 0, err
	}
	ids, err := s.evaluate(ctx, tx, plan.Root)
	if err != nil {
		return 0, err
	}
	n := 0
	it := ids.Iterator()
	for it.HasNext() {
		if err := s.deleteDoc(ctx, tx, int64(it.Next())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Store) deleteDoc(ctx context.Context, tx *sql.Tx, docID int64) error {
	sqlt := s.adapter.SQL()
	if err := s.adapter.FTS().DeleteDoc(ctx, tx, docID); err != nil {
		return fmt.Errorf("delete fts rows of %d: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteFieldsByDoc, docID); err != nil {
		return fmt.Errorf("delete fields of %d: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteDoc, docID); err != nil {
		return fmt.Errorf("delete doc %d: %w", docID, err)
	}
	return nil
}

package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"
)

// ValueCount is a string value with the number of documents holding it.
type ValueCount struct {
	Value string
	Count uint64
}

// FieldOverview describes one field name and kind present in the index.
type FieldOverview struct {
	Field    string
	Kind     document.Kind
	DocCount uint64
	// Multi is set when some document holds the field more than once.
	Multi bool
}

// StatsResult summarizes a numeric field.
type StatsResult struct {
	Field  string
	Count  uint64
	Min    *float64
	Max    *float64
	Avg    *float64
	Median *float64
}

var numericKinds = fmt.Sprintf("%d, %d, %d, %d", document.Double, document.Float, document.Int, document.Long)

// Fields lists every field present in snap, ordered by name and kind.
func (s *Store) Fields(ctx context.Context, snap *Snapshot) ([]FieldOverview, error) {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	rows, err := snap.tx.QueryContext(ctx, `
		SELECT name, kind, COUNT(DISTINCT doc_id), COUNT(*)
		FROM fields
		GROUP BY name, kind
		ORDER BY name, kind`)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var out []FieldOverview
	for rows.Next() {
		var (
			fo    FieldOverview
			kind  int
			total uint64
		)
		if err := rows.Scan(&fo.Field, &kind, &fo.DocCount, &total); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fo.Kind = document.Kind(kind)
		fo.Multi = total > fo.DocCount
		out = append(out, fo)
	}
	return out, rows.Err()
}

// Values returns the top string values of field by document frequency.
func (s *Store) Values(ctx context.Context, snap *Snapshot, field string, top int) ([]ValueCount, error) {
	if top <= 0 {
		top = 20
	}
	b := sqlbuilder.New(s.dialect.Style)
	stmt := fmt.Sprintf(`
		SELECT str, COUNT(DISTINCT doc_id) AS cnt
		FROM fields
		WHERE name = %s AND kind IN (%d, %d)
		GROUP BY str
		ORDER BY cnt DESC, str ASC
		LIMIT %s`, b.Arg(field), document.Keyword, document.Text, b.Arg(top))

	snap.mu.Lock()
	defer snap.mu.Unlock()
	rows, err := snap.tx.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// Stats computes count, min, max, mean and median of a numeric field.
func (s *Store) Stats(ctx context.Context, snap *Snapshot, field string) (StatsResult, error) {
	result := StatsResult{Field: field}
	b := sqlbuilder.New(s.dialect.Style)
	stmt := fmt.Sprintf(`
		SELECT COUNT(*), MIN(COALESCE(num_f, num_i)), MAX(COALESCE(num_f, num_i)), AVG(COALESCE(num_f, num_i))
		FROM fields
		WHERE name = %s AND kind IN (%s)`, b.Arg(field), numericKinds)

	snap.mu.Lock()
	defer snap.mu.Unlock()
	var minVal, maxVal, avgVal sql.NullFloat64
	err := snap.tx.QueryRowContext(ctx, stmt, b.Args()...).Scan(&result.Count, &minVal, &maxVal, &avgVal)
	if err != nil {
		return result, fmt.Errorf("query stats: %w", err)
	}
	if minVal.Valid {
		result.Min = &minVal.Float64
	}
	if maxVal.Valid {
		result.Max = &maxVal.Float64
	}
	if avgVal.Valid {
		result.Avg = &avgVal.Float64
	}
	if result.Count > 0 {
		median, err := s.median(ctx, snap.tx, field, result.Count)
		if err != nil {
			return result, err
		}
		result.Median = &median
	}
	return result, nil
}

func (s *Store) median(ctx context.Context, q *sql.Tx, field string, count uint64) (float64, error) {
	at := func(offset uint64) (float64, error) {
		b := sqlbuilder.New(s.dialect.Style)
		stmt := fmt.Sprintf(`
			SELECT COALESCE(num_f, num_i) AS v FROM fields
			WHERE name = %s AND kind IN (%s)
			ORDER BY v
			LIMIT 1 OFFSET %s`, b.Arg(field), numericKinds, b.Arg(int64(offset)))
		var v float64
		if err := q.QueryRowContext(ctx, stmt, b.Args()...).Scan(&v); err != nil {
			return 0, fmt.Errorf("query median: %w", err)
		}
		return v, nil
	}

	offset := (count - 1) / 2
	v1, err := at(offset)
	if err != nil {
		return 0, err
	}
	// For an even count, average the middle two values.
	if count%2 == 0 {
		v2, err := at(offset + 1)
		if err != nil {
			return 0, err
		}
		return (v1 + v2) / 2, nil
	}
	return v1, nil
}

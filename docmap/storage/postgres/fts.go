package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/storage"
)

// FTS matches phrases directly on fields.str: substring search for the
// ngram analyzer, a GIN-indexed tsvector phrase query for the word analyzer.
type FTS struct{}

func (FTS) Create(ctx context.Context, db *sql.DB, analyzer storage.Analyzer) error {
	if analyzer != storage.AnalyzerWord {
		return nil
	}
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_fields_tsv ON fields USING GIN (to_tsvector('simple', str)) WHERE kind = %d",
		int(document.Text))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create fts index: %w", err)
	}
	return nil
}

func (FTS) IndexValue(context.Context, *sql.Tx, int64, string) error { return nil }

func (FTS) DeleteDoc(context.Context, *sql.Tx, int64) error { return nil }

func (FTS) DeleteAll(context.Context, *sql.Tx) error { return nil }

func (FTS) CompilePhrase(b storage.Builder, analyzer storage.Analyzer, field, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("empty phrase")
	}
	kind := int(document.Text)
	if analyzer == storage.AnalyzerWord {
		return fmt.Sprintf(
			"SELECT doc_id FROM fields WHERE name = %s AND kind = %s AND to_tsvector('simple', str) @@ phraseto_tsquery('simple', %s)",
			b.Arg(field), b.Arg(kind), b.Arg(text)), nil
	}
	return fmt.Sprintf(
		"SELECT doc_id FROM fields WHERE name = %s AND kind = %s AND strpos(str, %s) > 0",
		b.Arg(field), b.Arg(kind), b.Arg(text)), nil
}

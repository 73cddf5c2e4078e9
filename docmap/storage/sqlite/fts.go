package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/storage"
)

// minTrigram is the shortest phrase the trigram tokenizer can match.
const minTrigram = 3

// FTS5 keeps a text_fts virtual table whose rowid is fields.id. When the
// driver was built without FTS5, Enabled is false and phrases fall back to
// scanning the fields table.
type FTS5 struct {
	Enabled bool
}

func tokenizer(analyzer storage.Analyzer) string {
	if analyzer == storage.AnalyzerWord {
		return "unicode61"
	}
	return "trigram case_sensitive 1"
}

func (f *FTS5) Create(ctx context.Context, db *sql.DB, analyzer storage.Analyzer) error {
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS text_fts USING fts5(value, tokenize='%s')", tokenizer(analyzer))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		if strings.Contains(err.Error(), "no such module") || strings.Contains(err.Error(), "no such tokenizer") {
			f.Enabled = false
			return nil
		}
		return fmt.Errorf("create fts: %w", err)
	}
	f.Enabled = true
	return nil
}

func (f *FTS5) IndexValue(ctx context.Context, tx *sql.Tx, fieldID int64, value string) error {
	if !f.Enabled {
		return nil
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO text_fts(rowid, value) VALUES(?1, ?2)", fieldID, value)
	return err
}

func (f *FTS5) DeleteDoc(ctx context.Context, tx *sql.Tx, docID int64) error {
	if !f.Enabled {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		"DELETE FROM text_fts WHERE rowid IN (SELECT id FROM fields WHERE doc_id = ?1 AND kind = ?2)",
		docID, int(document.Text))
	return err
}

func (f *FTS5) DeleteAll(ctx context.Context, tx *sql.Tx) error {
	if !f.Enabled {
		return nil
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM text_fts")
	return err
}

func (f *FTS5) CompilePhrase(b storage.Builder, analyzer storage.Analyzer, field, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("empty phrase")
	}
	kind := int(document.Text)
	useFTS := f.Enabled
	if analyzer == storage.AnalyzerNgram && utf8.RuneCountInString(text) < minTrigram {
		useFTS = false
	}
	if useFTS {
		return fmt.Sprintf(
			"SELECT fields.doc_id FROM fields JOIN text_fts ON text_fts.rowid = fields.id WHERE fields.name = %s AND fields.kind = %s AND text_fts MATCH %s",
			b.Arg(field), b.Arg(kind), b.Arg(quoteFTSPhrase(text))), nil
	}
	if analyzer == storage.AnalyzerWord {
		// Without FTS5: case-insensitive match of the phrase between word
		// boundaries approximated by spaces.
		return fmt.Sprintf(
			"SELECT doc_id FROM fields WHERE name = %s AND kind = %s AND (' ' || lower(str) || ' ') LIKE %s ESCAPE '\\'",
			b.Arg(field), b.Arg(kind), b.Arg("% "+escapeLike(strings.ToLower(strings.Join(strings.Fields(text), " ")))+" %")), nil
	}
	return fmt.Sprintf(
		"SELECT doc_id FROM fields WHERE name = %s AND kind = %s AND instr(str, %s) > 0",
		b.Arg(field), b.Arg(kind), b.Arg(text)), nil
}

// quoteFTSPhrase wraps text as a single FTS5 string so operators inside it
// are matched literally.
func quoteFTSPhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Analyzer selects how Text fields are matched by phrase queries.
type Analyzer string

const (
	// AnalyzerNgram matches phrases as case-sensitive substrings.
	AnalyzerNgram Analyzer = "ngram"
	// AnalyzerWord matches phrases as sequences of words.
	AnalyzerWord Analyzer = "word"
)

func ParseAnalyzer(s string) (Analyzer, error) {
	switch Analyzer(s) {
	case "", AnalyzerNgram:
		return AnalyzerNgram, nil
	case AnalyzerWord:
		return AnalyzerWord, nil
	default:
		return "", fmt.Errorf("unknown analyzer %q", s)
	}
}

// ErrUnsupported is returned by adapters for operations their backend lacks.
var ErrUnsupported = errors.New("operation not supported by backend")

// ErrForeign is returned when a database holds tables but no docmap index.
var ErrForeign = errors.New("not a docmap index")

const (
	MetaMagic    = "docmap_magic"
	MetaVersion  = "docmap_version"
	MetaAnalyzer = "analyzer"
	MetaFTS      = "fts"

	Magic   = "docmap"
	Version = "1"
)

// Adapter abstracts database-specific operations
type Adapter interface {
	Backend() Backend
	PlaceholderStyle() sqlbuilder.PlaceholderStyle
	Location() string

	Connect(ctx context.Context) (*sql.DB, error)
	Close() error

	// Tables lists the tables the database or schema already holds. Open
	// creates an index only when it is empty.
	Tables(ctx context.Context, db *sql.DB) ([]string, error)
	// CreateIndex creates the tables if missing and records the analyzer.
	CreateIndex(ctx context.Context, db *sql.DB, analyzer Analyzer) error
	// OpenIndex checks the tables and returns the recorded analyzer.
	OpenIndex(ctx context.Context, db *sql.DB) (Analyzer, error)
	// SnapshotOptions are the options of read transactions that pin a
	// consistent view for their whole lifetime.
	SnapshotOptions() *sql.TxOptions
	// Backup writes a consistent copy of the committed index to dest.
	Backup(ctx context.Context, db *sql.DB, dest string) error

	SQL() SQL
	FTS() FTS
}

// SQL holds prepared SQL templates for common operations
type SQL struct {
	GetMeta string
	SetMeta string

	InsertDoc   string // returns id
	InsertField string // returns id

	DeleteFieldsByDoc string
	DeleteDoc         string
	DeleteAllFields   string
	DeleteAllDocs     string

	CountDocs string
	AllDocIDs string
}

// FTS handles phrase matching on Text fields.
type FTS interface {
	Create(ctx context.Context, db *sql.DB, analyzer Analyzer) error
	IndexValue(ctx context.Context, tx *sql.Tx, fieldID int64, value string) error
	DeleteDoc(ctx context.Context, tx *sql.Tx, docID int64) error
	DeleteAll(ctx context.Context, tx *sql.Tx) error

	// CompilePhrase returns a SELECT yielding doc_id for documents whose
	// Text field matches text.
	CompilePhrase(b Builder, analyzer Analyzer, field, text string) (string, error)
}

// Builder interface for placeholder management
type Builder interface {
	Arg(v any) string
	Args() []any
	Len() int
}

// SetMeta writes every key of kv with the adapter's SetMeta template.
func SetMeta(ctx context.Context, db *sql.DB, sqlt SQL, kv map[string]string) error {
	for k, v := range kv {
		if _, err := db.ExecContext(ctx, sqlt.SetMeta, k, v); err != nil {
			return fmt.Errorf("set meta %s: %w", k, err)
		}
	}
	return nil
}

// ReadMeta checks the magic and returns the recorded analyzer and FTS flag.
func ReadMeta(ctx context.Context, db *sql.DB, sqlt SQL) (Analyzer, string, error) {
	var magic string
	if err := db.QueryRowContext(ctx, sqlt.GetMeta, MetaMagic).Scan(&magic); err != nil {
		return "", "", fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return "", "", fmt.Errorf("%w: magic %q", ErrForeign, magic)
	}
	var an, fts string
	if err := db.QueryRowContext(ctx, sqlt.GetMeta, MetaAnalyzer).Scan(&an); err != nil {
		return "", "", fmt.Errorf("read analyzer: %w", err)
	}
	if err := db.QueryRowContext(ctx, sqlt.GetMeta, MetaFTS).Scan(&fts); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("read fts flag: %w", err)
	}
	analyzer, err := ParseAnalyzer(an)
	if err != nil {
		return "", "", err
	}
	return analyzer, fts, nil
}

// QueryStrings runs a single-column query and collects the values.
func QueryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"
)

type Adapter struct {
	DSN    string
	Schema string // used as dedicated schema via search_path
}

func New(dsn, schema string) *Adapter {
	return &Adapter{DSN: dsn, Schema: schema}
}

func (a *Adapter) Backend() storage.Backend { return storage.BackendPostgres }

func (a *Adapter) PlaceholderStyle() sqlbuilder.PlaceholderStyle { return sqlbuilder.PlaceholderDollar }

func (a *Adapter) Location() string { return "postgres:" + a.Schema }

func (a *Adapter) Close() error { return nil }

func (a *Adapter) SQL() storage.SQL { return SQLTemplates }

func (a *Adapter) FTS() storage.FTS { return FTS{} }

func (a *Adapter) SnapshotOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

var schemaNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes; safe to wrap
	return `"` + ident + `"`
}

func (a *Adapter) ensureSchema(ctx context.Context, db *sql.DB) error {
	if a.Schema == "" || !schemaNameRe.MatchString(a.Schema) {
		return fmt.Errorf("invalid postgres schema name %q (must match %s)", a.Schema, schemaNameRe.String())
	}
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(a.Schema))
	return err
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	// 1) Connect without search_path to ensure schema exists
	cfg0, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	db0 := stdlib.OpenDB(*cfg0)
	if err := db0.PingContext(ctx); err != nil {
		_ = db0.Close()
		return nil, err
	}
	if err := a.ensureSchema(ctx, db0); err != nil {
		_ = db0.Close()
		return nil, err
	}
	_ = db0.Close()

	// 2) Connect with search_path pinned to the schema
	cfg, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(a.Schema))

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *Adapter) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return storage.QueryStrings(ctx, db,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name", a.Schema)
}

func (a *Adapter) CreateIndex(ctx context.Context, db *sql.DB, analyzer storage.Analyzer) error {
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		return err
	}
	if err := a.FTS().Create(ctx, db, analyzer); err != nil {
		return err
	}
	return storage.SetMeta(ctx, db, a.SQL(), map[string]string{
		storage.MetaMagic:    storage.Magic,
		storage.MetaVersion:  storage.Version,
		storage.MetaAnalyzer: string(analyzer),
		storage.MetaFTS:      "native",
	})
}

func (a *Adapter) OpenIndex(ctx context.Context, db *sql.DB) (storage.Analyzer, error) {
	analyzer, _, err := storage.ReadMeta(ctx, db, a.SQL())
	return analyzer, err
}

// Backup is not available; use pg_dump on the schema instead.
func (a *Adapter) Backup(context.Context, *sql.DB, string) error {
	return storage.ErrUnsupported
}

// DropSchema removes every table of the adapter's schema. Ephemeral stores
// call it on close.
func (a *Adapter) DropSchema(ctx context.Context, db *sql.DB) error {
	if !schemaNameRe.MatchString(a.Schema) {
		return fmt.Errorf("invalid postgres schema name %q", a.Schema)
	}
	_, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdent(a.Schema)+" CASCADE")
	return err
}

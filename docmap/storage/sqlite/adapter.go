package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/sqlbuilder"

	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go driver registered by modernc.org/sqlite.
	DriverModernc = "sqlite"
	// DriverCgo is github.com/mattn/go-sqlite3, available in cgo builds.
	DriverCgo = "sqlite3"
)

type Adapter struct {
	Path       string
	DriverName string

	fts FTS5
}

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: DriverModernc}
}

func NewWithDriver(path, driver string) *Adapter {
	return &Adapter{Path: path, DriverName: driver}
}

func (a *Adapter) Backend() storage.Backend {
	return storage.BackendSQLite
}

func (a *Adapter) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderQuestion
}

func (a *Adapter) Location() string {
	return a.Path
}

// dsn appends the pragmas in the dialect each driver understands.
func (a *Adapter) dsn() string {
	var params string
	switch a.DriverName {
	case DriverCgo:
		params = "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL"
	default:
		params = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	}
	dsn := a.Path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(a.DriverName, a.dsn())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *Adapter) Close() error {
	return nil
}

func (a *Adapter) SQL() storage.SQL {
	return SQLTemplates
}

func (a *Adapter) FTS() storage.FTS {
	return &a.fts
}

func (a *Adapter) SnapshotOptions() *sql.TxOptions {
	// A deferred transaction pins its WAL snapshot at the first read.
	return nil
}

func (a *Adapter) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return storage.QueryStrings(ctx, db,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

func (a *Adapter) CreateIndex(ctx context.Context, db *sql.DB, analyzer storage.Analyzer) error {
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		return err
	}
	if err := a.fts.Create(ctx, db, analyzer); err != nil {
		return err
	}
	fts := "off"
	if a.fts.Enabled {
		fts = "fts5"
	}
	return storage.SetMeta(ctx, db, a.SQL(), map[string]string{
		storage.MetaMagic:    storage.Magic,
		storage.MetaVersion:  storage.Version,
		storage.MetaAnalyzer: string(analyzer),
		storage.MetaFTS:      fts,
	})
}

func (a *Adapter) OpenIndex(ctx context.Context, db *sql.DB) (storage.Analyzer, error) {
	analyzer, fts, err := storage.ReadMeta(ctx, db, a.SQL())
	if err != nil {
		return "", err
	}
	a.fts.Enabled = fts == "fts5"
	if a.fts.Enabled {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM text_fts WHERE 0=1").Scan(&n); err != nil {
			return "", fmt.Errorf("fts table verification failed: %w", err)
		}
	}
	return analyzer, nil
}

func (a *Adapter) Backup(ctx context.Context, db *sql.DB, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup destination %s already exists", dest)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?1", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Package index implements the index store: documents kept in SQL tables,
// written through one long-lived writer transaction and read through
// reference-counted snapshots.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/planner"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/sqlite"
)

var ErrClosed = errors.New("index store is closed")

// Options configures a Store.
type Options struct {
	// Ephemeral stores delete their backing storage on Close.
	Ephemeral bool
	// Analyzer is used when the index is created; an existing index keeps
	// the analyzer it was created with.
	Analyzer storage.Analyzer
	// AsyncRefresh makes Commit return before the new snapshot is visible.
	AsyncRefresh bool
	// LoadBatch caps the number of documents fetched per statement.
	LoadBatch int
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Analyzer:  storage.AnalyzerNgram,
		LoadBatch: DefaultLoadBatch,
		Logger:    slog.Default(),
	}
}

const DefaultLoadBatch = 512

// Hit is a document together with its position in index order.
type Hit struct {
	ID       int64
	Document document.Document
}

// Store is an open index.
type Store struct {
	adapter storage.Adapter
	db      *sql.DB
	dialect planner.Dialect
	opts    Options
	log     *slog.Logger
	tempDir string

	wmu   sync.Mutex
	wtx   *sql.Tx
	dirty bool

	numDocs atomic.Int64
	gen     atomic.Uint64
	commits atomic.Uint64
	closed  atomic.Bool

	snaps *SnapshotManager
}

// Open connects through adapter, creating the index tables if missing.
func Open(ctx context.Context, adapter storage.Adapter, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoadBatch <= 0 {
		opts.LoadBatch = DefaultLoadBatch
	}
	analyzer, err := storage.ParseAnalyzer(string(opts.Analyzer))
	if err != nil {
		return nil, err
	}

	db, err := adapter.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", adapter.Location(), err)
	}
	tables, err := adapter.Tables(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(tables) == 0 {
		if err := adapter.CreateIndex(ctx, db, analyzer); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else {
		existing, err := adapter.OpenIndex(ctx, db)
		if err != nil {
			_ = db.Close()
			if !slices.Contains(tables, "meta") {
				err = storage.ErrForeign
			}
			return nil, fmt.Errorf("open index %s: %w", adapter.Location(), err)
		}
		analyzer = existing
	}

	s := &Store{
		adapter: adapter,
		db:      db,
		dialect: planner.DialectOf(adapter, analyzer),
		opts:    opts,
		log:     opts.Logger.With("index", adapter.Location()),
	}
	s.snaps = newSnapshotManager(s.openSnapshot, s.gen.Load, s.log)

	var n int64
	if err := db.QueryRowContext(ctx, adapter.SQL().CountDocs).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count documents: %w", err)
	}
	s.numDocs.Store(n)
	if err := s.snaps.Refresh(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenTemp opens an ephemeral SQLite store in a fresh temporary directory
// that Close removes.
func OpenTemp(ctx context.Context, opts Options) (*Store, error) {
	dir := filepath.Join(os.TempDir(), "docmap-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	opts.Ephemeral = true
	s, err := Open(ctx, sqlite.New(filepath.Join(dir, "index.db")), opts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.tempDir = dir
	return s, nil
}

// Analyzer returns the analyzer the index was created with.
func (s *Store) Analyzer() storage.Analyzer { return s.dialect.Analyzer }

// Options returns the options the store was opened with.
func (s *Store) Options() Options { return s.opts }

// Location names the backing storage.
func (s *Store) Location() string { return s.adapter.Location() }

// NumDocs is the number of documents as of the last commit.
func (s *Store) NumDocs() int64 { return s.numDocs.Load() }

// Generation increases with every commit that changed the index.
func (s *Store) Generation() uint64 { return s.gen.Load() }

// Snapshots exposes the snapshot manager.
func (s *Store) Snapshots() *SnapshotManager { return s.snaps }

// writer returns the open writer transaction, starting one if needed.
// Callers hold wmu.
func (s *Store) writer() (*sql.Tx, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.wtx != nil {
		return s.wtx, nil
	}
	// Detached from the caller's context: the transaction outlives the call.
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, fmt.Errorf("begin writer: %w", err)
	}
	s.wtx = tx
	return tx, nil
}

// Add appends doc without replacing anything.
func (s *Store) Add(ctx context.Context, doc document.Document) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := s.insertDoc(ctx, tx, doc); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// AddOrUpdate deletes every document matching term, then adds doc.
func (s *Store) AddOrUpdate(ctx context.Context, term query.Term, doc document.Document) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := s.deleteMatching(ctx, tx, term); err != nil {
		return err
	}
	if _, err := s.insertDoc(ctx, tx, doc); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Delete removes every document matching term and reports how many.
func (s *Store) Delete(ctx context.Context, term query.Term) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return 0, err
	}
	n, err := s.deleteMatching(ctx, tx, term)
	if n > 0 {
		s.dirty = true
	}
	return n, err
}

// DeleteAll removes every document.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return err
	}
	sqlt := s.adapter.SQL()
	if err := s.adapter.FTS().DeleteAll(ctx, tx); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteAllFields); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteAllDocs); err != nil {
		return fmt.Errorf("clear docs: %w", err)
	}
	s.dirty = true
	return nil
}

// Commit makes pending writes durable, updates the document counter and
// refreshes the default snapshot, blocking unless AsyncRefresh is set.
func (s *Store) Commit(ctx context.Context) error {
	if err := s.commit(ctx); err != nil {
		return err
	}
	if s.opts.AsyncRefresh {
		s.snaps.RefreshAsync()
		return nil
	}
	return s.snaps.Refresh(ctx)
}

// CommitAndRefresh commits and then always waits for the new snapshot,
// whatever AsyncRefresh says.
func (s *Store) CommitAndRefresh(ctx context.Context) error {
	if err := s.commit(ctx); err != nil {
		return err
	}
	return s.snaps.Refresh(ctx)
}

// CommitAsync commits and schedules the refresh in the background,
// whatever AsyncRefresh says.
func (s *Store) CommitAsync(ctx context.Context) error {
	if err := s.commit(ctx); err != nil {
		return err
	}
	s.snaps.RefreshAsync()
	return nil
}

func (s *Store) commit(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.wtx == nil {
		return nil
	}
	var n int64
	if err := s.wtx.QueryRowContext(ctx, s.adapter.SQL().CountDocs).Scan(&n); err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	tx := s.wtx
	s.wtx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.numDocs.Store(n)
	s.commits.Add(1)
	if s.dirty {
		s.dirty = false
		s.gen.Add(1)
	}
	return nil
}

// Rollback discards every write since the last commit.
func (s *Store) Rollback() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.wtx == nil {
		return nil
	}
	tx := s.wtx
	s.wtx = nil
	s.dirty = false
	return tx.Rollback()
}

// Save writes a consistent copy of the committed index to dest.
func (s *Store) Save(ctx context.Context, dest string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.adapter.Backup(ctx, s.db, dest)
}

// Close rolls back uncommitted writes, waits for background refreshes and
// closes the database. Ephemeral storage is removed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.wmu.Lock()
	if s.wtx != nil {
		_ = s.wtx.Rollback()
		s.wtx = nil
	}
	s.wmu.Unlock()
	s.snaps.Close()

	var errs []error
	if s.opts.Ephemeral {
		if d, ok := s.adapter.(interface {
			DropSchema(context.Context, *sql.DB) error
		}); ok {
			errs = append(errs, d.DropSchema(context.Background(), s.db))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	errs = append(errs, s.adapter.Close())
	if s.opts.Ephemeral {
		errs = append(errs, s.removeFiles())
	}
	return errors.Join(errs...)
}

func (s *Store) removeFiles() error {
	if s.tempDir != "" {
		return os.RemoveAll(s.tempDir)
	}
	if s.adapter.Backend() != storage.BackendSQLite {
		return nil
	}
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.adapter.Location() + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

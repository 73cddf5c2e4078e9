package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Snapshot is a consistent read view of the index at a commit point. It
// stays valid until every holder has released it.
type Snapshot struct {
	// mu serializes statements on tx; some drivers allow one active
	// statement per connection.
	mu      sync.Mutex
	tx      *sql.Tx
	gen     uint64
	numDocs int
	refs    atomic.Int32
}

// NumDocs is the number of documents visible in the snapshot.
func (s *Snapshot) NumDocs() int { return s.numDocs }

// Generation is the commit generation the snapshot was opened at.
func (s *Snapshot) Generation() uint64 { return s.gen }

func (s *Snapshot) decRef(log *slog.Logger) bool {
	n := s.refs.Add(-1)
	if n < 0 {
		log.Warn("snapshot released more often than acquired", "generation", s.gen)
		return false
	}
	if n == 0 {
		if err := s.tx.Rollback(); err != nil {
			log.Warn("close snapshot", "generation", s.gen, "error", err)
		}
		return true
	}
	return false
}

// SnapshotManager hands out the current default snapshot and replaces it
// on refresh. Concurrent refreshes coalesce into one.
type SnapshotManager struct {
	open   func(context.Context) (*Snapshot, error)
	target func() uint64
	log    *slog.Logger

	mu      sync.Mutex
	current *Snapshot
	closed  bool

	group   singleflight.Group
	pending atomic.Bool
	wg      sync.WaitGroup

	acquired  atomic.Int64
	live      atomic.Int64
	refreshes atomic.Uint64
}

func newSnapshotManager(open func(context.Context) (*Snapshot, error), target func() uint64, log *slog.Logger) *SnapshotManager {
	return &SnapshotManager{open: open, target: target, log: log}
}

// Acquire returns the current snapshot. Every Acquire must be paired with
// exactly one Release.
func (m *SnapshotManager) Acquire() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.current == nil {
		return nil, ErrClosed
	}
	m.current.refs.Add(1)
	m.acquired.Add(1)
	return m.current, nil
}

// Release gives back a snapshot from Acquire.
func (m *SnapshotManager) Release(s *Snapshot) {
	if s == nil {
		return
	}
	m.acquired.Add(-1)
	if s.decRef(m.log) {
		m.live.Add(-1)
	}
}

// Refresh blocks until the default snapshot includes the latest commit.
func (m *SnapshotManager) Refresh(ctx context.Context) error {
	for {
		target := m.target()
		m.mu.Lock()
		cur, closed := m.current, m.closed
		m.mu.Unlock()
		if closed {
			return ErrClosed
		}
		if cur != nil && cur.gen >= target {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err, _ := m.group.Do("refresh", func() (any, error) {
			return nil, m.refresh()
		}); err != nil {
			return err
		}
	}
}

// RefreshAsync schedules a refresh in the background. While one is
// scheduled and not yet started, further requests are dropped.
func (m *SnapshotManager) RefreshAsync() {
	if !m.pending.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.pending.Store(false)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.wg.Done()
		m.pending.Store(false)
		if err := m.Refresh(context.Background()); err != nil && err != ErrClosed {
			m.log.Error("background refresh failed", "error", err)
		}
	}()
}

// Wait blocks until background refreshes have finished.
func (m *SnapshotManager) Wait() {
	m.wg.Wait()
}

func (m *SnapshotManager) refresh() error {
	target := m.target()
	m.mu.Lock()
	if m.current != nil && m.current.gen >= target {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// Detached from the caller's context: the snapshot outlives the call.
	snap, err := m.open(context.Background())
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	snap.gen = target
	snap.refs.Store(1)
	m.live.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if snap.decRef(m.log) {
			m.live.Add(-1)
		}
		return ErrClosed
	}
	old := m.current
	m.current = snap
	m.mu.Unlock()

	if old != nil && old.decRef(m.log) {
		m.live.Add(-1)
	}
	m.refreshes.Add(1)
	m.log.Debug("snapshot refreshed", "generation", target, "docs", snap.numDocs)
	return nil
}

// Close drops the default snapshot once background refreshes are done.
// Snapshots still held by callers close on their last Release.
func (m *SnapshotManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()
	if cur != nil && cur.decRef(m.log) {
		m.live.Add(-1)
	}
}

// Stats reports counters for monitoring.
type Stats struct {
	Acquired  int64
	Open      int64
	Refreshes uint64
}

func (m *SnapshotManager) Stats() Stats {
	return Stats{Acquired: m.acquired.Load(), Open: m.live.Load(), Refreshes: m.refreshes.Load()}
}

func (s *Store) openSnapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, s.adapter.SnapshotOptions())
	if err != nil {
		return nil, err
	}
	// The first read pins the view.
	var n int
	if err := tx.QueryRowContext(ctx, s.adapter.SQL().CountDocs).Scan(&n); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &Snapshot{tx: tx, numDocs: n}, nil
}

package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetMeta records a key/value pair in the writer transaction; it becomes
// durable with the next commit.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	tx, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.adapter.SQL().SetMeta, key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Meta reads a committed key/value pair.
func (s *Store) Meta(ctx context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	var v string
	err := s.db.QueryRowContext(ctx, s.adapter.SQL().GetMeta, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, true, nil
}

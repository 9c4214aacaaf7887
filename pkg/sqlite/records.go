package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"uchef.app/cart-api/pkg/cart"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_records (
  key TEXT PRIMARY KEY,
  snapshot TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`

// CartStorage keeps cart records in a single SQLite table
type CartStorage struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database at path if needed and migrates it
func Open(path string) (*CartStorage, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &CartStorage{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *CartStorage) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate cart_records: %w", err)
	}
	return nil
}

func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var snapshot string
	row := s.db.QueryRowContext(ctx, `SELECT snapshot FROM cart_records WHERE key=?`, key)
	if err := row.Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cart.ErrNoRecord
		}
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(snapshot), nil
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_records(key,snapshot,updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		key, string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_records WHERE key=?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CartStorage) Close() error {
	return s.db.Close()
}

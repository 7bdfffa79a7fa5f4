package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/courial/internal/dbx"
)

// SQLiteRepository implements Repository over any DBTX, so it can run
// inside a transaction opened with dbx.WithTx.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

// GetOrCreate returns the value stored under key, generating and storing
// one with gen when the key is absent.
func (r *SQLiteRepository) GetOrCreate(ctx context.Context, key string, gen func() ([]byte, error)) ([]byte, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}
	v, err = gen()
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata[%s]: %w", key, err)
	}
	if err := r.Set(ctx, key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

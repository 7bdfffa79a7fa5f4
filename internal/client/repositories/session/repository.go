// Package session persists the Session aggregate as one sealed blob in the
// on-device SQLite database.
//
// The blob is JSON sealed with AES-GCM under a key derived from the
// configured storage secret and a per-install salt kept in metadata.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/repositories/metadata"
	model "github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/cryptox"
	"github.com/dmitrijs2005/courial/internal/dbx"
)

const saltSize = 16

// SQLiteRepository implements session.Persister.
type SQLiteRepository struct {
	db     *sql.DB
	secret []byte
	key    []byte
}

// NewSQLiteRepository derives the storage key (creating the install salt on
// first use) and returns a ready repository.
func NewSQLiteRepository(ctx context.Context, db *sql.DB, secret []byte) (*SQLiteRepository, error) {
	if len(secret) == 0 {
		return nil, errors.New("storage secret is empty")
	}
	salt, err := metadata.NewSQLiteRepository(db).GetOrCreate(ctx, metadata.KeyStorageSalt, func() ([]byte, error) {
		return cryptox.RandomBytes(saltSize)
	})
	if err != nil {
		return nil, fmt.Errorf("storage salt: %w", err)
	}
	return &SQLiteRepository{db: db, secret: secret, key: cryptox.DeriveStorageKey(secret, salt)}, nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*model.Session, error) {
	var ciphertext, nonce []byte
	err := r.db.QueryRowContext(ctx, `SELECT ciphertext, nonce FROM session_blob WHERE id = 1`).Scan(&ciphertext, &nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s model.Session
	if err := cryptox.OpenJSON(ciphertext, nonce, r.key, &s); err != nil {
		return nil, fmt.Errorf("failed to open session blob: %w", err)
	}
	return &s, nil
}

// Save replaces the blob and records the owning user id in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, s model.Session) error {
	ciphertext, nonce, err := cryptox.SealJSON(s, r.key)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}

	userID := ""
	if s.User != nil {
		userID = s.User.ID
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_blob (id, ciphertext, nonce, updated_at) VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET ciphertext = excluded.ciphertext, nonce = excluded.nonce, updated_at = excluded.updated_at
		`, ciphertext, nonce, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		md := metadata.NewSQLiteRepository(tx)
		if userID == "" {
			return md.Delete(ctx, metadata.KeySessionUserID)
		}
		return md.Set(ctx, metadata.KeySessionUserID, []byte(userID))
	})
}

// Clear removes the persisted blob. The install salt is kept.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_blob`); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		return metadata.NewSQLiteRepository(tx).Delete(ctx, metadata.KeySessionUserID)
	})
}

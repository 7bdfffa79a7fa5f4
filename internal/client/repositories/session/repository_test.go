package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/courial/internal/client/migrations"
	"github.com/dmitrijs2005/courial/internal/client/repositories/metadata"
	model "github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/dbx"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "courial.db"), migrations.Migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoad_EmptyReturnsNilNil(t *testing.T) {
	db := setupDB(t)
	r, err := NewSQLiteRepository(context.Background(), db, []byte("secret"))
	require.NoError(t, err)

	s, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestSaveLoad_RoundTripSkipsEphemeralState(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r, err := NewSQLiteRepository(ctx, db, []byte("secret"))
	require.NoError(t, err)

	cid := "CR-1001"
	in := model.Session{
		IsOnboarded:     true,
		IsAuthenticated: true,
		User:            &model.UserRecord{ID: "0b6d3c1e-8f0e-4c53-9c7b-7f3f2a7a2b11", CourialID: &cid, CurrentPlan: model.PlanBasic},

		LastSubscriptionSyncUserID: "0b6d3c1e-8f0e-4c53-9c7b-7f3f2a7a2b11",
		Effects:                    map[model.EffectName]model.EffectState{model.EffectPushRegistration: model.Succeeded},
	}
	require.NoError(t, r.Save(ctx, in))

	out, err := r.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, in.User, out.User)
	require.True(t, out.IsOnboarded)
	require.Empty(t, out.LastSubscriptionSyncUserID)
	require.Empty(t, out.Effects)

	uid, err := metadata.NewSQLiteRepository(db).Get(ctx, metadata.KeySessionUserID)
	require.NoError(t, err)
	require.Equal(t, []byte(in.User.ID), uid)
}

func TestBlobIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r, err := NewSQLiteRepository(ctx, db, []byte("secret"))
	require.NoError(t, err)

	require.NoError(t, r.Save(ctx, model.Session{User: &model.UserRecord{ID: "u1", Email: "driver@example.com"}}))

	var blob []byte
	require.NoError(t, db.QueryRow(`SELECT ciphertext FROM session_blob`).Scan(&blob))
	require.NotContains(t, string(blob), "driver@example.com")
}

func TestLoad_WrongSecretFails(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r1, err := NewSQLiteRepository(ctx, db, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, r1.Save(ctx, model.Session{IsOnboarded: true}))

	r2, err := NewSQLiteRepository(ctx, db, []byte("other"))
	require.NoError(t, err)
	_, err = r2.Load(ctx)
	require.ErrorContains(t, err, "failed to open session blob")
}

func TestClear_RemovesBlobKeepsSalt(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r, err := NewSQLiteRepository(ctx, db, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, model.Session{User: &model.UserRecord{ID: "u1"}}))

	require.NoError(t, r.Clear(ctx))

	s, err := r.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	salt, err := metadata.NewSQLiteRepository(db).Get(ctx, metadata.KeyStorageSalt)
	require.NoError(t, err)
	require.Len(t, salt, saltSize)
}

func TestNewSQLiteRepository_EmptySecret(t *testing.T) {
	_, err := NewSQLiteRepository(context.Background(), setupDB(t), nil)
	require.Error(t, err)
}

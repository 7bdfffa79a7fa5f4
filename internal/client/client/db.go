package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/courial/internal/client/migrations"
	"github.com/dmitrijs2005/courial/internal/client/repositories/metadata"
	sessionrepo "github.com/dmitrijs2005/courial/internal/client/repositories/session"
	"github.com/dmitrijs2005/courial/internal/dbx"
)

type Repositories struct {
	DB       *sql.DB
	Metadata *metadata.SQLiteRepository
	Session  *sessionrepo.SQLiteRepository
}

func (r *Repositories) Close() error { return r.DB.Close() }

// InitDatabase opens the database at dsn, migrates it and builds the
// repositories. secret protects the session blob at rest.
func InitDatabase(ctx context.Context, dsn string, secret []byte) (*Repositories, error) {
	db, err := dbx.OpenSQLite(ctx, dsn, migrations.Migrations)
	if err != nil {
		return nil, err
	}

	sess, err := sessionrepo.NewSQLiteRepository(ctx, db, secret)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session repository: %w", err)
	}

	return &Repositories{
		DB:       db,
		Metadata: metadata.NewSQLiteRepository(db),
		Session:  sess,
	}, nil
}

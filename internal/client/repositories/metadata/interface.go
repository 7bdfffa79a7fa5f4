// Package metadata stores small key/value facts about the install, such as
// the storage salt and the id of the last persisted user.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyStorageSalt   = "storage_salt"
	KeySessionUserID = "session_user_id"
)

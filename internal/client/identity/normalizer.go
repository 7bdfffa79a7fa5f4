// Package identity keeps the persisted user id in canonical UUID form.
package identity

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/logging"
	"github.com/google/uuid"
)

// Store is the part of session.Store the normalizer needs.
type Store interface {
	Snapshot() session.Session
	Update(ctx context.Context, fn func(*session.Session)) (session.Session, error)
}

// IsCanonical reports whether id is a UUID in the standard 8-4-4-4-12
// hyphenated form. Braced, URN and hyphen-less spellings count as legacy.
func IsCanonical(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Normalizer migrates legacy user ids to fresh UUIDs, once per legacy id.
type Normalizer struct {
	mu       sync.Mutex
	migrated map[string]string
	newID    func() string
	log      logging.Logger
}

func NewNormalizer(log logging.Logger) *Normalizer {
	return &Normalizer{migrated: map[string]string{}, newID: uuid.NewString, log: log}
}

// Normalize replaces a non-canonical user id with a UUID and persists the
// record, leaving every other field untouched. It reports whether a
// migration happened. A legacy id seen again in the same process maps to
// the UUID it was first given.
func (n *Normalizer) Normalize(ctx context.Context, store Store) (bool, error) {
	snap := store.Snapshot()
	if snap.User == nil || IsCanonical(snap.User.ID) {
		return false, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var (
		legacy   string
		replaced string
	)
	_, err := store.Update(ctx, func(s *session.Session) {
		if s.User == nil || IsCanonical(s.User.ID) {
			return
		}
		legacy = s.User.ID
		next, ok := n.migrated[legacy]
		if !ok {
			next = n.newID()
			n.migrated[legacy] = next
		}
		s.User.ID = next
		replaced = next
	})
	if replaced == "" {
		return false, err
	}
	n.log.Info(ctx, "migrated legacy user id", "legacy_id", legacy, "user_id", replaced)
	return true, err
}

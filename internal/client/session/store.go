package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/courial/internal/clock"
	"github.com/dmitrijs2005/courial/internal/common"
	"github.com/dmitrijs2005/courial/internal/logging"
)

// Persister reads and writes the Session as an opaque blob.
// Load returns (nil, nil) when nothing has been stored yet.
type Persister interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// Store owns the Session for the lifetime of the process.
type Store struct {
	mu        sync.Mutex
	state     Session
	persister Persister
	log       logging.Logger
	clock     clock.Clock

	hydrated    chan struct{}
	hydrateOnce sync.Once
	hydrateErr  error
	isHydrated  bool
	subscribers map[int]chan Session
	nextSubID   int

	// syncOwner is the user whose subscription sync holds the InFlight
	// slot. Only that user's completion may settle it.
	syncOwner string
}

func NewStore(p Persister, log logging.Logger, clk clock.Clock) *Store {
	return &Store{
		state:       Session{Effects: map[EffectName]EffectState{}},
		persister:   p,
		log:         log,
		clock:       clk,
		hydrated:    make(chan struct{}),
		subscribers: map[int]chan Session{},
	}
}

// Hydrate loads the persisted session once per process and then closes the
// Hydrated channel. A JWT access token that has already expired downgrades
// the session to unauthenticated; opaque tokens are kept as they are. Later calls return the first call's result.
func (s *Store) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		defer close(s.hydrated)

		loaded, err := s.persister.Load(ctx)
		if err != nil {
			s.hydrateErr = fmt.Errorf("hydrate session: %w", err)
			s.log.Error(ctx, "session hydrate failed, starting empty", "err", err)
		}

		s.mu.Lock()
		if loaded != nil {
			s.state = loaded.Clone()
		}
		s.state.Effects = map[EffectName]EffectState{}
		s.state.LastSubscriptionSyncUserID = ""
		if u := s.state.User; s.state.IsAuthenticated && u != nil && u.AccessToken != "" && TokenExpired(u.AccessToken, s.clock.Now()) {
			s.log.Info(ctx, "access token expired, signing out", "user_id", u.ID)
			s.state.IsAuthenticated = false
		}
		s.isHydrated = true
		s.notifyLocked()
		s.mu.Unlock()
	})
	return s.hydrateErr
}

// Hydrated is closed once Hydrate has finished, successfully or not.
func (s *Store) Hydrated() <-chan struct{} { return s.hydrated }

// Snapshot returns a deep copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update applies fn to the live session under the store lock, persists the
// result and notifies subscribers. fn must not block. The in-memory change
// stands even if persisting fails; the error is returned for logging.
func (s *Store) Update(ctx context.Context, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	if !s.isHydrated {
		s.mu.Unlock()
		return Session{}, fmt.Errorf("update session: %w", common.ErrorNotHydrated)
	}
	fn(&s.state)
	snap := s.state.Clone()
	err := s.persister.Save(ctx, snap)
	s.notifyLocked()
	s.mu.Unlock()

	if err != nil {
		return snap, fmt.Errorf("persist session: %w", err)
	}
	return snap, nil
}

// TryBegin moves the effect from NotStarted or Failed to InFlight and
// reports whether it did. It is the only admission check for an effect.
func (s *Store) TryBegin(name EffectName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Effects[name] {
	case NotStarted, Failed:
		s.state.Effects[name] = InFlight
		return true
	}
	return false
}

// Finish records the outcome of an InFlight effect. It does nothing if
// the effect is no longer in flight, e.g. after a logout.
func (s *Store) Finish(name EffectName, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Effects[name] != InFlight {
		return
	}
	if ok {
		s.state.Effects[name] = Succeeded
	} else {
		s.state.Effects[name] = Failed
	}
}

// TryBeginSubscriptionSync admits a subscription sync for userID unless one
// has already been started for the same identity in this foreground.
func (s *Store) TryBeginSubscriptionSync(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastSubscriptionSyncUserID == userID {
		return false
	}
	s.state.LastSubscriptionSyncUserID = userID
	s.state.Effects[EffectSubscriptionSync] = InFlight
	s.syncOwner = userID
	return true
}

// FinishSubscriptionSync records the outcome of userID's sync. A failure
// always clears a marker that still names userID, so the next evaluation
// retries it. The effect state only changes if userID still owns the
// in-flight slot; a sync for an identity that has since been replaced
// settles nothing.
func (s *Store) FinishSubscriptionSync(userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok && s.state.LastSubscriptionSyncUserID == userID {
		s.state.LastSubscriptionSyncUserID = ""
	}
	if s.state.Effects[EffectSubscriptionSync] != InFlight || s.syncOwner != userID {
		return
	}
	s.syncOwner = ""
	if ok {
		s.state.Effects[EffectSubscriptionSync] = Succeeded
	} else {
		s.state.Effects[EffectSubscriptionSync] = Failed
	}
}

// ResetEffects starts a new foreground lifetime: every effect that is not
// currently in flight goes back to NotStarted.
func (s *Store) ResetEffects() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range s.state.Effects {
		if st != InFlight {
			delete(s.state.Effects, name)
		}
	}
	if s.state.Effects[EffectSubscriptionSync] != InFlight {
		s.state.LastSubscriptionSyncUserID = ""
	}
}

// Logout drops the user and all effect state and removes the persisted
// blob. The onboarding flag survives, and is written back on its own, so a
// signed-out user lands on the auth route, not onboarding.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if !s.isHydrated {
		s.mu.Unlock()
		return fmt.Errorf("logout: %w", common.ErrorNotHydrated)
	}
	s.state = Session{
		IsOnboarded: s.state.IsOnboarded,
		Effects:     map[EffectName]EffectState{},
	}
	s.syncOwner = ""
	snap := s.state.Clone()

	err := s.persister.Clear(ctx)
	if err == nil && snap.IsOnboarded {
		err = s.persister.Save(ctx, snap)
	}
	s.notifyLocked()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives the latest session after every
// change. Slow readers only ever see the most recent value.
func (s *Store) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// notifyLocked must be called with s.mu held, so subscribers observe
// updates in commit order.
func (s *Store) notifyLocked() {
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s.state.Clone()
	}
}

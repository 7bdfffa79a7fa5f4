package navigation

import (
	"sync"

	"github.com/dmitrijs2005/courial/internal/client/session"
)

// Watcher re-runs Resolve whenever one of its inputs changes and calls
// redirect when the target differs from the last one issued. After a
// redirect the watcher assumes the user is now in the target's group.
type Watcher struct {
	mu       sync.Mutex
	in       Input
	last     Route
	redirect func(Route)
}

func NewWatcher(group Group, redirect func(Route)) *Watcher {
	return &Watcher{in: Input{CurrentGroup: group}, redirect: redirect}
}

// Observe feeds a new session snapshot.
func (w *Watcher) Observe(s session.Session) {
	w.apply(func(in *Input) {
		in.IsOnboarded = s.IsOnboarded
		in.IsAuthenticated = s.IsAuthenticated
	})
}

// SetReady feeds the readiness flag.
func (w *Watcher) SetReady(ready bool) {
	w.apply(func(in *Input) { in.Ready = ready })
}

// SetGroup records that the user moved to g on their own.
func (w *Watcher) SetGroup(g Group) {
	w.apply(func(in *Input) { in.CurrentGroup = g })
}

// Current returns the watcher's view of the user's group.
func (w *Watcher) Current() Group {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.in.CurrentGroup
}

func (w *Watcher) apply(fn func(*Input)) {
	w.mu.Lock()
	fn(&w.in)
	target, ok := Resolve(w.in)
	if !ok || target == w.last {
		if !ok {
			w.last = ""
		}
		w.mu.Unlock()
		return
	}
	w.last = target
	w.in.CurrentGroup = GroupOf(target)
	w.mu.Unlock()

	w.redirect(target)
}

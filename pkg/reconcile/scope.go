package reconcile

import (
	"context"
	"sync"

	"jirahooks/pkg/tracker"
)

type identityKey struct{}

// IdentityFromContext returns the identity a commit is being processed as.
func IdentityFromContext(ctx context.Context) (tracker.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(tracker.Identity)
	return identity, ok
}

// scope is the acting-as window for one commit. It is created per call and
// never shared between requests.
type scope struct {
	ctx       context.Context
	commit    Commit
	identity  tracker.Identity
	listeners listeners
	once      sync.Once
}

func (e *Engine) acquire(ctx context.Context, commit Commit, identity tracker.Identity) *scope {
	s := &scope{
		ctx:       context.WithValue(ctx, identityKey{}, identity),
		commit:    commit,
		identity:  identity,
		listeners: e.listeners,
	}
	s.listeners.impersonate(s.ctx, commit, identity)
	return s
}

// release ends the scope. Safe to call more than once.
func (s *scope) release() {
	s.once.Do(func() {
		s.listeners.release(s.ctx, s.commit, s.identity)
	})
}

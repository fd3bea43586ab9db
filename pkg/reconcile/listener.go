package reconcile

import (
	"context"

	"jirahooks/pkg/command"
	"jirahooks/pkg/tracker"
)

// Listener provides hooks into commit processing for logging, metrics and
// notifications. Nil hooks are skipped.
type Listener struct {
	// OnCommitStart is called before the committer is looked up.
	OnCommitStart func(ctx context.Context, commit Commit)
	// OnImpersonate is called when the identity scope is acquired.
	OnImpersonate func(ctx context.Context, commit Commit, identity tracker.Identity)
	// OnRelease is called when the identity scope is released.
	OnRelease func(ctx context.Context, commit Commit, identity tracker.Identity)
	// OnActionFinish is called after each action, with a nil error when it was applied.
	OnActionFinish func(ctx context.Context, commit Commit, identity tracker.Identity, action command.Action, err error)
	// OnCommitFinish is called once per commit with the joined action errors.
	OnCommitFinish func(ctx context.Context, commit Commit, err error)
}

type listeners []Listener

func (ls listeners) commitStart(ctx context.Context, commit Commit) {
	for _, l := range ls {
		if l.OnCommitStart != nil {
			l.OnCommitStart(ctx, commit)
		}
	}
}

func (ls listeners) impersonate(ctx context.Context, commit Commit, identity tracker.Identity) {
	for _, l := range ls {
		if l.OnImpersonate != nil {
			l.OnImpersonate(ctx, commit, identity)
		}
	}
}

func (ls listeners) release(ctx context.Context, commit Commit, identity tracker.Identity) {
	for _, l := range ls {
		if l.OnRelease != nil {
			l.OnRelease(ctx, commit, identity)
		}
	}
}

func (ls listeners) actionFinish(ctx context.Context, commit Commit, identity tracker.Identity, action command.Action, err error) {
	for _, l := range ls {
		if l.OnActionFinish != nil {
			l.OnActionFinish(ctx, commit, identity, action, err)
		}
	}
}

func (ls listeners) commitFinish(ctx context.Context, commit Commit, err error) {
	for _, l := range ls {
		if l.OnCommitFinish != nil {
			l.OnCommitFinish(ctx, commit, err)
		}
	}
}

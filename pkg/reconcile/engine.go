// Package reconcile applies commit-message commands to tracker issues on
// behalf of the committer.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jirahooks/pkg/command"
	"jirahooks/pkg/tracker"
	"jirahooks/pkg/transition"
)

// Engine processes commits against a tracker. It holds no per-request state
// and may be shared by concurrent callers.
type Engine struct {
	tracker   tracker.Tracker
	directory tracker.Directory
	logger    Logger
	listeners listeners
}

// New creates an Engine.
func New(t tracker.Tracker, d tracker.Directory, opts ...Option) *Engine {
	e := &Engine{
		tracker:   t,
		directory: d,
		logger:    defaultLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessCommits processes commits in order. A failing commit never stops
// the ones after it; the returned error joins every commit's error.
func (e *Engine) ProcessCommits(ctx context.Context, commits []Commit) error {
	var errs []error
	for _, commit := range commits {
		if err := e.ProcessCommit(ctx, commit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProcessCommit resolves the committer and applies every command in the
// commit message as that user. Action failures are logged and do not stop
// later actions; the returned error joins them. A panic while processing is
// returned as ErrCommitPanicked.
func (e *Engine) ProcessCommit(ctx context.Context, commit Commit) (err error) {
	logger := e.log(ctx)
	email := commit.Committer.Email
	logger.Printf("info processing commit id=%s email=%s", commit.ID, email)
	e.listeners.commitStart(ctx, commit)
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("warn recovered panic commit=%s: %v", commit.ID, r)
			err = fmt.Errorf("%w: commit=%s: %v", ErrCommitPanicked, commit.ID, r)
		}
		e.listeners.commitFinish(ctx, commit, err)
	}()

	identity, ok := e.findUser(ctx, email)
	if !ok {
		logger.Printf("warn no user found for email address email=%s commit=%s", email, commit.ID)
		return fmt.Errorf("%w: email=%s", ErrUserNotFound, email)
	}

	s := e.acquire(ctx, commit, identity)
	defer s.release()

	var errs []error
	command.Each(commit.Message, func(action command.Action) bool {
		actionErr := e.Apply(s.ctx, identity, commit, action)
		e.listeners.actionFinish(s.ctx, commit, identity, action, actionErr)
		if actionErr != nil {
			errs = append(errs, actionErr)
		}
		return true
	})
	return errors.Join(errs...)
}

func (e *Engine) findUser(ctx context.Context, email string) (tracker.Identity, bool) {
	if strings.TrimSpace(email) == "" || e.directory == nil {
		return tracker.Identity{}, false
	}
	users, err := e.directory.FindUsersByEmail(ctx, email)
	if err != nil {
		e.log(ctx).Printf("warn user lookup failed email=%s err=%v", email, err)
		return tracker.Identity{}, false
	}
	if len(users) == 0 {
		return tracker.Identity{}, false
	}
	return users[0], true
}

// Apply runs one action as identity: find the issue, perform the named
// transition unless the token is "comment", then add the comment. Each step
// must succeed for the next to run. A completed transition is not undone
// when the comment fails.
func (e *Engine) Apply(ctx context.Context, identity tracker.Identity, commit Commit, action command.Action) error {
	logger := e.log(ctx)
	fail := func(kind error, messages []string) error {
		ae := &ActionError{
			Kind:     kind,
			IssueKey: action.IssueKey,
			User:     identity.Name,
			Token:    action.Token,
			Messages: messages,
		}
		logger.Printf("warn %v issue=%s user=%s token=%s", kind, action.IssueKey, identity.Name, action.Token)
		for _, msg := range messages {
			logger.Printf("warn issue=%s user=%s error=%q", action.IssueKey, identity.Name, msg)
		}
		return ae
	}

	found, err := e.tracker.FindIssue(ctx, identity, action.IssueKey)
	if err != nil {
		return fail(ErrIssueNotFoundOrForbidden, []string{err.Error()})
	}
	if !found.IsValid() || found.Issue == nil {
		return fail(ErrIssueNotFoundOrForbidden, found.ErrorMessages())
	}
	issue := *found.Issue
	if issue.Key == "" {
		issue.Key = action.IssueKey
	}

	if !action.IsComment() {
		available, err := e.tracker.ListAvailableTransitions(ctx, issue, identity)
		if err != nil {
			return fail(ErrNoSuchTransition, []string{err.Error()})
		}
		outcome := transition.Resolve(action.Token, available)
		if outcome.Kind != transition.Matched {
			return fail(ErrNoSuchTransition, nil)
		}

		validation, err := e.tracker.ValidateTransition(ctx, identity, issue.ID, outcome.ID)
		if err != nil {
			return fail(ErrTransitionValidationFailed, []string{err.Error()})
		}
		if !validation.IsValid() {
			return fail(ErrTransitionValidationFailed, validation.ErrorMessages())
		}
		result, err := e.tracker.ExecuteTransition(ctx, identity, validation)
		if err != nil {
			return fail(ErrTransitionExecutionFailed, []string{err.Error()})
		}
		if !result.IsValid() {
			return fail(ErrTransitionExecutionFailed, result.ErrorMessages())
		}
	}

	params := e.tracker.NewCommentUpdate(BuildComment(commit, action.Message))
	update, err := e.tracker.ValidateUpdate(ctx, identity, issue.ID, params)
	if err != nil {
		return fail(ErrCommentValidationFailed, []string{err.Error()})
	}
	if !update.IsValid() {
		return fail(ErrCommentValidationFailed, update.ErrorMessages())
	}
	result, err := e.tracker.ExecuteUpdate(ctx, identity, update)
	if err != nil {
		return fail(ErrCommentExecutionFailed, []string{err.Error()})
	}
	if !result.IsValid() {
		return fail(ErrCommentExecutionFailed, result.ErrorMessages())
	}
	return nil
}

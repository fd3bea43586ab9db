// Package tracker defines the issue-tracker and user-directory boundary the
// reconciliation engine talks to.
package tracker

import (
	"context"

	"jirahooks/pkg/transition"
)

// Identity is a tracker user that calls are made on behalf of.
type Identity struct {
	Name        string
	Key         string
	Email       string
	DisplayName string
}

// Issue is the minimal view of a tracker issue.
type Issue struct {
	ID      string
	Key     string
	Summary string
	Status  string
}

// ServiceResult is implemented by every tracker result.
type ServiceResult interface {
	IsValid() bool
	ErrorMessages() []string
}

// Errors is an error-message collection. The zero value is valid.
type Errors struct {
	Messages []string
}

// IsValid reports whether no errors were collected.
func (e Errors) IsValid() bool {
	return len(e.Messages) == 0
}

// ErrorMessages returns the collected messages.
func (e Errors) ErrorMessages() []string {
	return e.Messages
}

// Add appends non-empty messages.
func (e *Errors) Add(messages ...string) {
	for _, msg := range messages {
		if msg != "" {
			e.Messages = append(e.Messages, msg)
		}
	}
}

// IssueResult is returned by issue lookups and mutations.
type IssueResult struct {
	Errors
	Issue *Issue
}

// TransitionValidation carries a checked transition to ExecuteTransition.
type TransitionValidation struct {
	Errors
	IssueID      string
	TransitionID int
}

// UpdateParams describes an issue update. Only comments are supported.
type UpdateParams struct {
	Comment        string
	VisibilityRole string
}

// UpdateValidation carries a checked update to ExecuteUpdate.
type UpdateValidation struct {
	Errors
	IssueID string
	Params  UpdateParams
}

// Tracker is the issue-tracker workflow API. A non-nil error means the
// call itself failed; business-rule failures are reported through the
// result's error messages.
type Tracker interface {
	FindIssue(ctx context.Context, identity Identity, key string) (IssueResult, error)
	ListAvailableTransitions(ctx context.Context, issue Issue, identity Identity) ([]transition.Transition, error)
	ValidateTransition(ctx context.Context, identity Identity, issueID string, transitionID int) (TransitionValidation, error)
	ExecuteTransition(ctx context.Context, identity Identity, validation TransitionValidation) (IssueResult, error)
	NewCommentUpdate(comment string) UpdateParams
	ValidateUpdate(ctx context.Context, identity Identity, issueID string, params UpdateParams) (UpdateValidation, error)
	ExecuteUpdate(ctx context.Context, identity Identity, validation UpdateValidation) (IssueResult, error)
}

// Directory looks up tracker users.
type Directory interface {
	FindUsersByEmail(ctx context.Context, email string) ([]Identity, error)
}

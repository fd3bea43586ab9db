package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound               = errors.New("no tracker user for committer email")
	ErrIssueNotFoundOrForbidden   = errors.New("issue not found or not visible")
	ErrNoSuchTransition           = errors.New("no matching transition")
	ErrTransitionValidationFailed = errors.New("transition validation failed")
	ErrTransitionExecutionFailed  = errors.New("transition failed")
	ErrCommentValidationFailed    = errors.New("comment validation failed")
	ErrCommentExecutionFailed     = errors.New("comment failed")
	ErrCommitPanicked             = errors.New("commit processing panicked")
)

var kindLabels = []struct {
	err   error
	label string
}{
	{ErrUserNotFound, "user_not_found"},
	{ErrIssueNotFoundOrForbidden, "issue_not_found"},
	{ErrNoSuchTransition, "no_such_transition"},
	{ErrTransitionValidationFailed, "transition_invalid"},
	{ErrTransitionExecutionFailed, "transition_failed"},
	{ErrCommentValidationFailed, "comment_invalid"},
	{ErrCommentExecutionFailed, "comment_failed"},
	{ErrCommitPanicked, "panic"},
}

// Label returns a stable metric/event label for err: "applied" for nil,
// the failure kind for a known sentinel, "error" otherwise.
func Label(err error) string {
	if err == nil {
		return "applied"
	}
	for _, k := range kindLabels {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "error"
}

// ActionError describes why one action was not applied.
type ActionError struct {
	Kind     error
	IssueKey string
	User     string
	Token    string
	Messages []string
}

func (e *ActionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: issue=%s user=%s", e.Kind, e.IssueKey, e.User)
	if e.Token != "" {
		fmt.Fprintf(&b, " token=%s", e.Token)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	return b.String()
}

func (e *ActionError) Unwrap() error {
	return e.Kind
}

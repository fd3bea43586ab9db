package worker

import (
	"context"
	"strings"
)

// Handler processes one decoded outcome event.
type Handler func(ctx context.Context, evt *Event) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// OutcomeFunc handles just the decoded outcome.
type OutcomeFunc func(ctx context.Context, outcome Outcome) error

// HandleOutcome adapts fn to a Handler.
func HandleOutcome(fn OutcomeFunc) Handler {
	return func(ctx context.Context, evt *Event) error {
		return fn(ctx, evt.Outcome)
	}
}

// OnlyFailures passes through events whose action was not applied and acks
// the rest without calling next.
func OnlyFailures(next Handler) Handler {
	return func(ctx context.Context, evt *Event) error {
		if evt.Outcome.Applied() {
			return nil
		}
		return next(ctx, evt)
	}
}

// ForProjects limits next to outcomes whose issue key belongs to one of the
// given Jira project keys. Outcomes without an issue key are passed through.
func ForProjects(keys ...string) Middleware {
	projects := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		projects[strings.ToUpper(strings.TrimSpace(key))] = struct{}{}
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			issue := evt.Outcome.IssueKey
			if issue == "" || len(projects) == 0 {
				return next(ctx, evt)
			}
			project, _, _ := strings.Cut(issue, "-")
			if _, ok := projects[strings.ToUpper(project)]; !ok {
				return nil
			}
			return next(ctx, evt)
		}
	}
}

package internal

import (
	"context"
	"errors"
	"log"

	"jirahooks/pkg/command"
	"jirahooks/pkg/reconcile"
	"jirahooks/pkg/tracker"
)

// Notifier turns reconciliation outcomes into metrics and published events.
type Notifier struct {
	publisher Publisher
	rules     *RuleEngine
	topic     string
	logger    *log.Logger
}

// NewNotifier builds a notifier. A nil publisher records metrics only. When
// rules are configured only matching events are published; otherwise every
// event goes to topic.
func NewNotifier(publisher Publisher, rules *RuleEngine, topic string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = NewLogger("notify")
	}
	return &Notifier{publisher: publisher, rules: rules, topic: topic, logger: logger}
}

// Listener returns the reconcile hooks backed by this notifier.
func (n *Notifier) Listener() reconcile.Listener {
	return reconcile.Listener{
		OnActionFinish: n.actionFinished,
		OnCommitFinish: n.commitFinished,
	}
}

func (n *Notifier) actionFinished(ctx context.Context, commit reconcile.Commit, identity tracker.Identity, action command.Action, err error) {
	IncAction(reconcile.Label(err))

	outcome := Outcome{
		CommitID:  commit.ID,
		CommitURL: commit.URL,
		Email:     commit.Committer.Email,
		User:      identity.Name,
		IssueKey:  action.IssueKey,
		Token:     action.Token,
		Result:    reconcile.Label(err),
	}
	name := EventActionApplied
	if err != nil {
		name = EventActionFailed
		outcome.Error = err.Error()
		var actionErr *reconcile.ActionError
		if errors.As(err, &actionErr) {
			outcome.Messages = actionErr.Messages
		}
	}
	n.publish(ctx, name, outcome)
}

func (n *Notifier) commitFinished(ctx context.Context, commit reconcile.Commit, err error) {
	switch {
	case err == nil:
		IncCommit("applied")
	case errors.Is(err, reconcile.ErrUserNotFound):
		IncCommit("user_not_found")
		n.publish(ctx, EventCommitSkipped, Outcome{
			CommitID:  commit.ID,
			CommitURL: commit.URL,
			Email:     commit.Committer.Email,
			Result:    reconcile.Label(err),
			Error:     err.Error(),
		})
	default:
		IncCommit("failed")
	}
}

func (n *Notifier) publish(ctx context.Context, name string, outcome Outcome) {
	if n.publisher == nil {
		return
	}
	provider, requestID := sourceFrom(ctx)
	event, err := NewOutcomeEvent(provider, requestID, name, outcome)
	if err != nil {
		n.logger.Printf("warn encode outcome failed: %v", err)
		return
	}

	var matches []RuleMatch
	if n.rules != nil && len(n.rules.rules) > 0 {
		matches = n.rules.Evaluate(event)
	} else {
		matches = []RuleMatch{{Topic: n.topic}}
	}
	for _, match := range matches {
		if err := n.publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers); err != nil {
			IncPublishError(match.Topic)
			n.logger.Printf("warn publish failed topic=%s event=%s commit=%s: %v", match.Topic, name, outcome.CommitID, err)
		}
	}
}

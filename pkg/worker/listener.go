package worker

import "context"

// Listener hooks into the worker lifecycle. Nil hooks are skipped.
type Listener struct {
	OnStart         func(ctx context.Context)
	OnExit          func(ctx context.Context)
	OnMessageStart  func(ctx context.Context, evt *Event)
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError sees decode and handler failures; evt is nil when decoding failed.
	OnError func(ctx context.Context, evt *Event, err error)
}

// LogListener logs start, exit and every failure with the commit and issue
// it concerned.
func LogListener(l Logger) Listener {
	if l == nil {
		l = defaultLogger
	}
	return Listener{
		OnStart: func(ctx context.Context) { l.Printf("info worker started") },
		OnExit:  func(ctx context.Context) { l.Printf("info worker stopped") },
		OnError: func(ctx context.Context, evt *Event, err error) {
			if evt == nil {
				l.Printf("warn undecodable message: %v", err)
				return
			}
			l.Printf("error handler failed event=%s commit=%s issue=%s request_id=%s: %v",
				evt.Name, evt.Outcome.CommitID, evt.Outcome.IssueKey, evt.RequestID, err)
		},
	}
}

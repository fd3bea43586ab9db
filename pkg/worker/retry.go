package worker

import "context"

// RetryDecision says whether a failed message is redelivered.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy decides what happens to a message whose handler failed.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry nacks every failed message, leaving redelivery to the broker.
type NoRetry struct{}

// OnError always nacks.
func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Retry: false, Nack: true}
}

// DropUndecodable acks messages that could not be decoded and nacks handler
// failures. Undecodable messages never succeed on redelivery.
type DropUndecodable struct{}

// OnError acks when evt is nil.
func (DropUndecodable) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	if evt == nil {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Nack: true}
}

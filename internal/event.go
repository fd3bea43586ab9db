package internal

import (
	"context"
	"encoding/json"

	"jirahooks/pkg/worker"
)

// Event is a notification published to the configured drivers.
type Event struct {
	Provider   string                 `json:"provider"`
	Name       string                 `json:"name"`
	RequestID  string                 `json:"request_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
	RawPayload []byte                 `json:"-"`
	RawObject  interface{}            `json:"-"`
}

// Event names.
const (
	EventActionApplied = "action.applied"
	EventActionFailed  = "action.failed"
	EventCommitSkipped = "commit.skipped"
)

// Outcome is the payload of a reconciliation event. Workers decode the
// same type.
type Outcome = worker.Outcome

// NewOutcomeEvent builds an event whose raw payload is the JSON outcome and
// whose data is the flattened outcome, for rule evaluation.
func NewOutcomeEvent(provider, requestID, name string, outcome Outcome) (Event, error) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return Event{}, err
	}
	rawObject, data := rawObjectAndFlatten(raw)
	return Event{
		Provider:   provider,
		Name:       name,
		RequestID:  requestID,
		Data:       data,
		RawPayload: raw,
		RawObject:  rawObject,
	}, nil
}

func rawObjectAndFlatten(raw []byte) (interface{}, map[string]interface{}) {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, map[string]interface{}{}
	}
	objectMap, ok := out.(map[string]interface{})
	if !ok {
		return out, map[string]interface{}{}
	}
	return out, Flatten(objectMap)
}

type sourceKey struct{}

type source struct {
	provider  string
	requestID string
}

// WithSource tags ctx with the webhook provider and request id that
// notifications raised during processing should carry.
func WithSource(ctx context.Context, provider, requestID string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source{provider: provider, requestID: requestID})
}

func sourceFrom(ctx context.Context) (provider, requestID string) {
	if s, ok := ctx.Value(sourceKey{}).(source); ok {
		return s.provider, s.requestID
	}
	return "", ""
}

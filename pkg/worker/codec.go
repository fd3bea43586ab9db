package worker

import (
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrNotOutcome is returned for payloads that carry no commit id.
var ErrNotOutcome = errors.New("payload is not a commit outcome")

// Codec decodes broker messages into events.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes the JSON outcome published by the server. Provider,
// event name and request id come from message metadata.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into an Event.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var outcome Outcome
	if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
		return nil, err
	}
	if outcome.CommitID == "" {
		return nil, ErrNotOutcome
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	name := msg.Metadata.Get("event")
	if name == "" {
		name = "action.applied"
		if !outcome.Applied() {
			name = "action.failed"
		}
	}

	return &Event{
		Provider:  msg.Metadata.Get("provider"),
		Name:      name,
		RequestID: msg.Metadata.Get("request_id"),
		Topic:     topic,
		Metadata:  metadata,
		Payload:   json.RawMessage(msg.Payload),
		Outcome:   outcome,
	}, nil
}

package worker

import "encoding/json"

// Outcome is the JSON body of a published reconciliation event.
type Outcome struct {
	CommitID  string   `json:"commit_id"`
	CommitURL string   `json:"commit_url,omitempty"`
	Email     string   `json:"email"`
	User      string   `json:"user,omitempty"`
	IssueKey  string   `json:"issue_key,omitempty"`
	Token     string   `json:"token,omitempty"`
	Result    string   `json:"result"`
	Error     string   `json:"error,omitempty"`
	Messages  []string `json:"messages,omitempty"`
}

// Applied reports whether the action went through.
func (o Outcome) Applied() bool {
	return o.Result == "applied"
}

// Event represents an outcome message received by the worker.
type Event struct {
	// Provider is the webhook endpoint the commits arrived on ("push", "github", "gitlab").
	Provider string `json:"provider"`
	// Name is the event name, e.g. "action.applied".
	Name string `json:"name"`
	// RequestID correlates the event with the webhook request log lines.
	RequestID string `json:"request_id,omitempty"`
	// Topic is the name of the topic the message was received on.
	Topic string `json:"topic"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
	// Outcome is the decoded payload.
	Outcome Outcome `json:"outcome"`
}

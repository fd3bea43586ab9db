package worker

import "github.com/ThreeDotsLabs/watermill/message"

// Option configures a Worker.
type Option func(*Worker)

// WithSubscriber sets the Watermill subscriber messages are read from.
func WithSubscriber(sub message.Subscriber) Option {
	return func(w *Worker) {
		w.subscriber = sub
	}
}

// WithTopics adds outcome topics to subscribe to. Once set, HandleTopic
// rejects topics outside this list.
func WithTopics(topics ...string) Option {
	return func(w *Worker) {
		for _, topic := range topics {
			if topic == "" {
				continue
			}
			w.topics = append(w.topics, topic)
			w.allowedTopics[topic] = struct{}{}
		}
	}
}

// WithConcurrency bounds how many messages are handled at once.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithCodec replaces DefaultCodec.
func WithCodec(c Codec) Option {
	return func(w *Worker) {
		if c != nil {
			w.codec = c
		}
	}
}

// WithMiddleware appends middleware; the first one added runs outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(w *Worker) {
		w.middleware = append(w.middleware, mw...)
	}
}

// WithRetry replaces the NoRetry policy.
func WithRetry(policy RetryPolicy) Option {
	return func(w *Worker) {
		if policy != nil {
			w.retry = policy
		}
	}
}

// WithLogger sets the worker logger. A nil logger silences it.
func WithLogger(l Logger) Option {
	return func(w *Worker) {
		if l == nil {
			w.logger = discardLogger()
			return
		}
		w.logger = l
	}
}

// WithListener adds lifecycle listeners.
func WithListener(listeners ...Listener) Option {
	return func(w *Worker) {
		w.listeners = append(w.listeners, listeners...)
	}
}

// WithEventHandlers registers handlers keyed by event name, such as
// "action.failed" or "commit.skipped".
func WithEventHandlers(handlers map[string]Handler) Option {
	return func(w *Worker) {
		for name, h := range handlers {
			if name != "" && h != nil {
				w.eventHandlers[name] = h
			}
		}
	}
}

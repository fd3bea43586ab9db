package reconcile

import "context"

// Option is a function that configures an Engine.
type Option func(*Engine)

// WithLogger sets the default logger for the engine.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithListener adds a listener to the engine.
func WithListener(listener Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, listener)
	}
}

type loggerKey struct{}

// ContextWithLogger returns a context whose processing logs go to l, for
// request-scoped loggers.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

func (e *Engine) log(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return e.logger
}

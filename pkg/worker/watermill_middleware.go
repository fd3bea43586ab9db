package worker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// MiddlewareFromWatermill lets a Watermill handler middleware, such as
// middleware.Timeout or middleware.Recoverer, wrap a worker handler. The
// middleware sees a copy of the message built from evt.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			msg := message.NewMessage(watermill.NewUUID(), message.Payload(evt.Payload))
			msg.SetContext(ctx)
			for key, value := range evt.Metadata {
				msg.Metadata.Set(key, value)
			}
			if msg.Metadata.Get("event") == "" {
				msg.Metadata.Set("event", evt.Name)
			}
			wrapped := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), evt)
			})
			_, err := wrapped(msg)
			return err
		}
	}
}

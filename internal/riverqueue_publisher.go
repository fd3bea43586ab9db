package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// riverInserter is the subset of the River client used for publishing.
type riverInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error
}

type riverClientInserter struct {
	client *river.Client[pgx.Tx]
}

func (r riverClientInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error {
	_, err := r.client.Insert(ctx, args, opts)
	return err
}

// outcomeJobArgs carries an already encoded payload under a configurable kind.
type outcomeJobArgs struct {
	kind    string
	payload json.RawMessage
}

func (a outcomeJobArgs) Kind() string { return a.kind }

func (a outcomeJobArgs) MarshalJSON() ([]byte, error) {
	if len(a.payload) == 0 {
		return []byte("{}"), nil
	}
	return a.payload, nil
}

// riverQueuePublisher enqueues events as River jobs. It only inserts; workers
// run elsewhere.
type riverQueuePublisher struct {
	inserter riverInserter
	closeFn  func()
	cfg      RiverQueueConfig
}

// newRiverQueuePublisher connects to Postgres and builds an insert-only River client.
func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, errors.New("riverqueue dsn is required")
	}
	pool, err := pgxpool.New(context.Background(), cfg.DSN)
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{
		inserter: riverClientInserter{client: client},
		closeFn:  pool.Close,
		cfg:      cfg,
	}, nil
}

// Publish inserts one job whose args are the event payload.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	argsPayload := event.RawPayload
	if len(argsPayload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		argsPayload = encoded
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"provider":   event.Provider,
		"event":      event.Name,
		"request_id": event.RequestID,
		"topic":      topic,
	})
	if err != nil {
		return err
	}

	return p.inserter.Insert(ctx, outcomeJobArgs{kind: p.cfg.Kind, payload: argsPayload}, &river.InsertOpts{
		Queue:       p.cfg.Queue,
		MaxAttempts: p.cfg.MaxAttempts,
		Priority:    p.cfg.Priority,
		Tags:        p.cfg.Tags,
		Metadata:    metadata,
	})
}

// PublishForDrivers is a convenience method that calls Publish.
func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

// Close releases the connection pool.
func (p *riverQueuePublisher) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

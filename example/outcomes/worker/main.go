package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	worker "jirahooks/pkg/worker"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the jirahooks config")
	driver := flag.String("driver", "", "Override subscriber driver (amqp|nats|kafka|sql|gochannel)")
	concurrency := flag.Int("concurrency", 5, "Messages handled at once")
	projects := flag.String("projects", "", "Comma-separated Jira project keys to report failures for")
	flag.Parse()

	log.SetPrefix("jirahooks/outcomes-worker ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		log.Fatalf("load subscriber config: %v", err)
	}
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
	}
	topics, err := worker.LoadTopicsFromConfig(*configPath)
	if err != nil {
		log.Fatalf("load topics: %v", err)
	}

	log.Printf("subscribing topics=%s", strings.Join(topics, ","))
	wk, err := worker.NewFromConfig(subCfg,
		worker.WithTopics(topics...),
		worker.WithConcurrency(*concurrency),
		worker.WithRetry(worker.DropUndecodable{}),
		worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Timeout(30*time.Second))),
		worker.WithLogger(log.Default()),
		worker.WithListener(worker.LogListener(log.Default())),
	)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := wk.Close(); err != nil {
			log.Printf("subscriber close: %v", err)
		}
	}()

	failures := worker.OnlyFailures(worker.HandleOutcome(func(ctx context.Context, o worker.Outcome) error {
		log.Printf("failed result=%s issue=%s token=%s user=%s commit=%s", o.Result, o.IssueKey, o.Token, o.User, o.CommitURL)
		for _, msg := range o.Messages {
			log.Printf("  %s", msg)
		}
		return nil
	}))
	if *projects != "" {
		failures = worker.ForProjects(strings.Split(*projects, ",")...)(failures)
	}
	wk.HandleEvent("action.failed", failures)
	wk.HandleEvent("commit.skipped", func(ctx context.Context, evt *worker.Event) error {
		log.Printf("skipped commit=%s email=%s: no Jira user", evt.Outcome.CommitID, evt.Outcome.Email)
		return nil
	})
	wk.HandleDefault(func(ctx context.Context, evt *worker.Event) error {
		o := evt.Outcome
		if driver := evt.Metadata["driver"]; driver != "" {
			log.Printf("driver=%s topic=%s provider=%s", driver, evt.Topic, evt.Provider)
		}
		log.Printf("applied issue=%s token=%s user=%s commit=%s", o.IssueKey, o.Token, o.User, o.CommitID)
		return nil
	})

	if err := wk.Run(ctx); err != nil {
		log.Fatal(err)
	}
}

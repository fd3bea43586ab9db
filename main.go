package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"jirahooks/internal"
	"jirahooks/pkg/api"
	"jirahooks/pkg/directory"
	"jirahooks/pkg/reconcile"
	"jirahooks/pkg/storage"
	"jirahooks/pkg/storage/identities"
	"jirahooks/pkg/tracker/jira"
	"jirahooks/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	jiraClient, err := jira.NewClient(jira.Config{
		BaseURL:               config.Jira.BaseURL,
		Username:              config.Jira.Username,
		Token:                 config.Jira.Token,
		UserTokens:            config.Jira.UserTokens,
		Timeout:               time.Duration(config.Jira.TimeoutMS) * time.Millisecond,
		CommentVisibilityRole: config.Jira.CommentVisibilityRole,
		AllowServiceAccount:   config.Jira.AllowServiceAccount,
	})
	if err != nil {
		logger.Fatalf("jira client: %v", err)
	}
	if len(config.Jira.UserTokens) == 0 && !config.Jira.AllowServiceAccount {
		logger.Printf("warn jira.user_tokens is empty and allow_service_account is off; every action will fail")
	}

	mux := http.NewServeMux()
	var sources directory.Chain
	if config.Directory.Storage.Enabled() {
		store, err := identities.Open(identities.Config{
			Driver:      config.Directory.Storage.Driver,
			DSN:         config.Directory.Storage.DSN,
			Dialect:     config.Directory.Storage.Dialect,
			Table:       config.Directory.Storage.Table,
			AutoMigrate: config.Directory.Storage.AutoMigrate,
		})
		if err != nil {
			logger.Fatalf("identity store: %v", err)
		}
		defer store.Close()
		if err := seedIdentities(context.Background(), store, config.Directory.Seed); err != nil {
			logger.Fatalf("seed identities: %v", err)
		}
		sources = append(sources, directory.Store{Identities: store})
		logger.Printf("identity store enabled driver=%s table=%s", config.Directory.Storage.Driver, config.Directory.Storage.Table)

		if config.Directory.APIPath != "" {
			mux.Handle(config.Directory.APIPath, &api.IdentitiesHandler{
				Store:  store,
				Token:  config.Directory.APIToken,
				Logger: internal.NewLogger("api"),
			})
			logger.Printf("identity api enabled on %s", config.Directory.APIPath)
		}
	}
	if config.Directory.UseJira() {
		sources = append(sources, jiraClient)
	}

	opts := []reconcile.Option{
		reconcile.WithLogger(internal.NewLogger("reconcile")),
		reconcile.WithListener(jiraClient.ServiceAccountListener(internal.NewLogger("jira"))),
	}
	if config.Notifications.Enabled {
		notifier, closeFn, err := buildNotifier(config)
		if err != nil {
			logger.Fatalf("notifications: %v", err)
		}
		defer closeFn()
		opts = append(opts, reconcile.WithListener(notifier.Listener()))
	} else {
		opts = append(opts, reconcile.WithListener(internal.NewNotifier(nil, nil, "", nil).Listener()))
	}
	engine := reconcile.New(jiraClient, sources, opts...)

	handlerLogger := internal.NewLogger("webhook")
	maxBody := config.Server.MaxBodyBytes

	if config.Providers.Push.IsEnabled(true) {
		mux.Handle(config.Providers.Push.Path, webhook.NewPushHandler(engine, handlerLogger, maxBody))
		logger.Printf("push webhook enabled on %s", config.Providers.Push.Path)
	}

	if config.Providers.GitHub.IsEnabled(false) {
		ghHandler, err := webhook.NewGitHubHandler(engine, handlerLogger, maxBody)
		if err != nil {
			logger.Fatalf("github handler: %v", err)
		}
		mux.Handle(config.Providers.GitHub.Path, ghHandler)
		logger.Printf("github webhook enabled on %s", config.Providers.GitHub.Path)
	}

	if config.Providers.GitLab.IsEnabled(false) {
		glHandler, err := webhook.NewGitLabHandler(engine, handlerLogger, maxBody)
		if err != nil {
			logger.Fatalf("gitlab handler: %v", err)
		}
		mux.Handle(config.Providers.GitLab.Path, glHandler)
		logger.Printf("gitlab webhook enabled on %s", config.Providers.GitLab.Path)
	}

	if bb := config.Providers.Bitbucket; bb.IsEnabled(false) {
		bbHandler, err := webhook.NewBitbucketHandler(engine, handlerLogger, maxBody, bb.HookUUID)
		if err != nil {
			logger.Fatalf("bitbucket handler: %v", err)
		}
		mux.Handle(bb.Path, bbHandler)
		logger.Printf("bitbucket webhook enabled on %s", bb.Path)
	}

	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           internal.NewRateLimitHandler(mux, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute),
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func buildNotifier(config internal.Config) (*internal.Notifier, func(), error) {
	logger := internal.NewLogger("notify")
	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  config.Notifications.Rules,
		Strict: config.Notifications.RulesStrict,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}

	publisher, err := internal.NewPublisher(config.Notifications.Watermill)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := publisher.Close(); err != nil {
			logger.Printf("publisher close: %v", err)
		}
	}
	return internal.NewNotifier(publisher, ruleEngine, config.Notifications.Topic, logger), closeFn, nil
}

func seedIdentities(ctx context.Context, store storage.IdentityStore, seed []internal.IdentitySeed) error {
	for _, entry := range seed {
		err := store.UpsertIdentity(ctx, storage.IdentityRecord{
			Email:    entry.Email,
			Username: entry.Username,
			Priority: entry.Priority,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

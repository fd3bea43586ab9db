package internal

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the main application configuration.
type AppConfig struct {
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// Providers contains configuration for each push webhook endpoint.
	Providers struct {
		Push      ProviderConfig  `yaml:"push"`
		GitHub    ProviderConfig  `yaml:"github"`
		GitLab    ProviderConfig  `yaml:"gitlab"`
		Bitbucket BitbucketConfig `yaml:"bitbucket"`
	} `yaml:"providers"`
	// Jira configures the issue tracker.
	Jira JiraConfig `yaml:"jira"`
	// Directory configures how committer emails map to Jira users.
	Directory DirectoryConfig `yaml:"directory"`
	// Notifications configures outcome publishing.
	Notifications NotificationsConfig `yaml:"notifications"`
}

// Config represents the validated application configuration.
type Config struct {
	AppConfig `yaml:",inline"`
}

// ProviderConfig represents the configuration for a single webhook endpoint.
// Enabled is a pointer so an omitted value can fall back to a default.
type ProviderConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BitbucketConfig adds the optional webhook UUID Bitbucket sends in X-Hook-UUID.
type BitbucketConfig struct {
	ProviderConfig `yaml:",inline"`
	HookUUID       string `yaml:"hook_uuid"`
}

// IsEnabled reports Enabled, or def when it was not set.
func (p ProviderConfig) IsEnabled(def bool) bool {
	if p.Enabled == nil {
		return def
	}
	return *p.Enabled
}

// JiraConfig holds the Jira server connection settings.
type JiraConfig struct {
	BaseURL               string            `yaml:"base_url"`
	Username              string            `yaml:"username"`
	Token                 string            `yaml:"token"`
	UserTokens            map[string]string `yaml:"user_tokens"`
	TimeoutMS             int64             `yaml:"timeout_ms"`
	CommentVisibilityRole string            `yaml:"comment_visibility_role"`
	// AllowServiceAccount runs calls for users missing from UserTokens as
	// the service account instead of failing them.
	AllowServiceAccount   bool              `yaml:"allow_service_account"`
}

// DirectoryConfig holds identity resolution settings.
type DirectoryConfig struct {
	JiraLookup *bool          `yaml:"jira_lookup"`
	Storage    StorageConfig  `yaml:"storage"`
	Seed       []IdentitySeed `yaml:"seed"`
	// APIPath mounts the identity admin API when set; APIToken is then required.
	APIPath    string         `yaml:"api_path"`
	APIToken   string         `yaml:"api_token"`
}

// UseJira reports whether Jira's user search is consulted.
func (d DirectoryConfig) UseJira() bool {
	return d.JiraLookup == nil || *d.JiraLookup
}

// StorageConfig configures the identity mapping table.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Dialect     string `yaml:"dialect"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// Enabled reports whether a storage backend is configured.
func (s StorageConfig) Enabled() bool {
	return s.DSN != ""
}

// IdentitySeed is an email to username mapping written at startup.
type IdentitySeed struct {
	Email    string `yaml:"email"`
	Username string `yaml:"username"`
	Priority int    `yaml:"priority"`
}

// NotificationsConfig configures outcome events.
type NotificationsConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Topic       string          `yaml:"topic"`
	Watermill   WatermillConfig `yaml:"watermill"`
	Rules       []Rule          `yaml:"rules"`
	RulesStrict bool            `yaml:"rules_strict"`
}

// WatermillConfig holds the configuration for Watermill, which handles messaging.
type WatermillConfig struct {
	Driver     string           `yaml:"driver"`
	Drivers    []string         `yaml:"drivers"`
	GoChannel  GoChannelConfig  `yaml:"gochannel"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	NATS       NATSConfig       `yaml:"nats"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	SQL        SQLConfig        `yaml:"sql"`
	HTTP       HTTPConfig       `yaml:"http"`
	RiverQueue RiverQueueConfig `yaml:"riverqueue"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the River job publisher.
type RiverQueueConfig struct {
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// LoadConfig loads the application configuration from a YAML file.
// It expands environment variables, applies defaults, normalizes rules and
// validates required settings.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg.AppConfig)
	normalized, err := normalizeRules(cfg.Notifications.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Notifications.Rules = normalized

	if err := validate(cfg.AppConfig); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RulesConfig represents the rule-specific parts of the configuration.
type RulesConfig struct {
	Rules  []Rule `yaml:"rules"`
	Strict bool   `yaml:"rules_strict"`
	Logger *log.Logger
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 60000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Providers.Push.Path == "" {
		cfg.Providers.Push.Path = "/webhooks/push"
	}
	if cfg.Providers.GitHub.Path == "" {
		cfg.Providers.GitHub.Path = "/webhooks/github"
	}
	if cfg.Providers.GitLab.Path == "" {
		cfg.Providers.GitLab.Path = "/webhooks/gitlab"
	}
	if cfg.Providers.Bitbucket.Path == "" {
		cfg.Providers.Bitbucket.Path = "/webhooks/bitbucket"
	}
	cfg.Jira.BaseURL = strings.TrimSpace(cfg.Jira.BaseURL)
	if cfg.Jira.TimeoutMS == 0 {
		cfg.Jira.TimeoutMS = 10000
	}
	if cfg.Directory.Storage.Table == "" {
		cfg.Directory.Storage.Table = "jirahooks_identities"
	}
	if cfg.Notifications.Topic == "" {
		cfg.Notifications.Topic = "jirahooks.outcomes"
	}
	if cfg.Notifications.Watermill.Driver == "" {
		cfg.Notifications.Watermill.Driver = "gochannel"
	}
	if cfg.Notifications.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Notifications.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Notifications.Watermill.HTTP.Mode == "" {
		cfg.Notifications.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Notifications.Watermill.RiverQueue.Queue == "" {
		cfg.Notifications.Watermill.RiverQueue.Queue = "default"
	}
	if cfg.Notifications.Watermill.RiverQueue.Kind == "" {
		cfg.Notifications.Watermill.RiverQueue.Kind = "jirahooks.outcome"
	}
	if cfg.Notifications.Watermill.RiverQueue.MaxAttempts == 0 {
		cfg.Notifications.Watermill.RiverQueue.MaxAttempts = 25
	}
}

func validate(cfg AppConfig) error {
	if cfg.Jira.BaseURL == "" {
		return errors.New("jira.base_url is required")
	}
	if !cfg.Directory.UseJira() && !cfg.Directory.Storage.Enabled() {
		return errors.New("directory needs jira_lookup or storage")
	}
	if len(cfg.Directory.Seed) > 0 && !cfg.Directory.Storage.Enabled() {
		return errors.New("directory.seed requires directory.storage")
	}
	if cfg.Directory.APIPath != "" {
		if !cfg.Directory.Storage.Enabled() {
			return errors.New("directory.api_path requires directory.storage")
		}
		if cfg.Directory.APIToken == "" {
			return errors.New("directory.api_token is required with directory.api_path")
		}
	}
	return nil
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make(EmitList, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}

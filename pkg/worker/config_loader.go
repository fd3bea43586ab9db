package worker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Notifications struct {
		Topic     string           `yaml:"topic"`
		Watermill SubscriberConfig `yaml:"watermill"`
		Rules     []struct {
			Emit yaml.Node `yaml:"emit"`
		} `yaml:"rules"`
	} `yaml:"notifications"`
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadSubscriberConfig reads notifications.watermill from the server config
// file at path.
func LoadSubscriberConfig(path string) (SubscriberConfig, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return SubscriberConfig{}, err
	}
	sub := cfg.Notifications.Watermill
	applySubscriberDefaults(&sub)
	return sub, nil
}

// LoadTopicsFromConfig returns the topics the server publishes to: every rule
// emit, or the default outcome topic when no rules are configured.
func LoadTopicsFromConfig(path string) ([]string, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if len(cfg.Notifications.Rules) == 0 {
		topic := strings.TrimSpace(cfg.Notifications.Topic)
		if topic == "" {
			topic = "jirahooks.outcomes"
		}
		return []string{topic}, nil
	}

	var topics []string
	seen := make(map[string]struct{})
	for i, rule := range cfg.Notifications.Rules {
		emits, err := emitTopics(rule.Emit)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		for _, topic := range emits {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

func emitTopics(node yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("emit must be a string or a list")
	}
}

func applySubscriberDefaults(cfg *SubscriberConfig) {
	if cfg.Driver == "" && len(cfg.Drivers) == 0 {
		cfg.Driver = "gochannel"
	}
	if cfg.GoChannel.OutputChannelBuffer == 0 {
		cfg.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.NATS.ClientIDSuffix == "" {
		cfg.NATS.ClientIDSuffix = "-worker"
	}
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = 10
	}
}

package worker

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubscriberConfig mirrors the watermill section of the receiver configuration,
// extended with the subscriber-only knobs (consumer groups, durable names). A
// worker can point at the same YAML file the receiver runs from.
type SubscriberConfig struct {
	Driver  string   `yaml:"driver"`
	Drivers []string `yaml:"drivers"`

	GoChannel GoChannelConfig `yaml:"gochannel"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	NATS      NATSConfig      `yaml:"nats"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	SQL       SQLConfig       `yaml:"sql"`

	SubscribeRetry RetryConfig `yaml:"subscribe_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka subscriber.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// NATSConfig holds configuration for the NATS Streaming subscriber. The
// client ID suffix keeps a worker from colliding with the receiver when both
// share a configured client_id.
type NATSConfig struct {
	ClusterID      string `yaml:"cluster_id"`
	ClientID       string `yaml:"client_id"`
	ClientIDSuffix string `yaml:"client_id_suffix"`
	URL            string `yaml:"url"`
	Durable        string `yaml:"durable"`
}

// AMQPConfig holds configuration for the AMQP subscriber.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL subscriber.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	ConsumerGroup        string `yaml:"consumer_group"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// RetryConfig controls how subscriber construction is retried while a broker
// is still coming up.
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

type workerFileConfig struct {
	Watermill    SubscriberConfig `yaml:"watermill"`
	DefaultTopic string           `yaml:"default_topic"`
	Rules        []struct {
		Emit emitTopics `yaml:"emit"`
	} `yaml:"rules"`
}

// emitTopics accepts the scalar-or-list emit form used by routing rules.
type emitTopics []string

func (e *emitTopics) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := value.Decode(&topic); err != nil {
			return err
		}
		*e = emitTopics{topic}
		return nil
	default:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = emitTopics(topics)
		return nil
	}
}

// LoadSubscriberConfig reads the watermill section from a YAML config file,
// expanding environment variable references first.
func LoadSubscriberConfig(path string) (SubscriberConfig, error) {
	cfg, err := loadWorkerFile(path)
	if err != nil {
		return SubscriberConfig{}, err
	}
	applySubscriberDefaults(&cfg.Watermill)
	return cfg.Watermill, nil
}

// LoadTopicsFromConfig collects the topics a worker should consume from the
// routing rules in a config file. When no rules emit anything, the default
// topic is returned, matching where the receiver publishes in that case.
func LoadTopicsFromConfig(path string) ([]string, error) {
	cfg, err := loadWorkerFile(path)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(cfg.Rules))
	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		for _, topic := range rule.Emit {
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
	if len(topics) > 0 {
		return topics, nil
	}

	fallback := strings.TrimSpace(cfg.DefaultTopic)
	if fallback == "" {
		fallback = "pushwatch.push"
	}
	return []string{fallback}, nil
}

func loadWorkerFile(path string) (workerFileConfig, error) {
	var cfg workerFileConfig
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
	if cfg.SubscribeRetry.Attempts == 0 {
		cfg.SubscribeRetry.Attempts = 3
	}
	if cfg.SubscribeRetry.DelayMS == 0 {
		cfg.SubscribeRetry.DelayMS = 500
	}
}

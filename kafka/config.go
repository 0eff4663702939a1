package kafka

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ProducerConfig is the configuration for kafka producer
type ProducerConfig struct {
	// kafka cluster brokers
	Brokers []string `mapstructure:"brokers"`

	// Optional: kafka client id
	// Used to identify this producer in Kafka Broker logs and metrics.
	// Suggest using meaningful names for monitoring and troubleshooting.
	ClientID string `mapstructure:"client_id"`

	// Acks message confirmation mechanism.
	// Determines the number of confirmations the Leader Broker must receive before considering the message committed.
	// - all or -1: highest reliability.
	// Leader must wait for all replicas (In-Sync Replicas, ISR) to receive the message before returning confirmation.
	// 	Highest latency, but lowest data loss risk.
	// - 1: default setting.
	// Leader returns confirmation immediately after receiving the message, without waiting for replicas.
	// 	Medium reliability, good performance.
	// - 0: lowest reliability. Producer sends without waiting for any confirmation.
	// 	Highest performance, but highest data loss risk.
	// default: "all"
	Acks string `mapstructure:"acks"`

	// Compression codec message compression algorithm. Used to compress messages sent to Kafka.
	// Can significantly reduce network bandwidth usage, but will increase client CPU load.
	// - none: do not use compression.
	// - gzip, snappy, lz4, zstd: commonly used compression algorithms.
	// 	Snappy or lz4 usually have a good balance between performance and compression rate.
	// default: "none"
	Compression string `mapstructure:"compression"`

	// LingerMs batch sending wait time (milliseconds).
	// The producer will wait for this time to collect more messages and pack them into a request to send,
	// reducing network requests and improving throughput.
	// Usually used with batch.size.
	// Suggest setting a small positive value (e.g., 5 to 100 milliseconds)
	// default: 0 (no wait, send immediately)
	LingerMs int `mapstructure:"linger_ms"`

	// Batch size maximum bytes to send. When the accumulated message size reaches this size, send immediately.
	// The batch size and linger.ms together determine the batch sending strategy.
	// default value is usually small; suggest to increase based on message size and expected throughput.
	// default: 100KB
	BatchSize int `mapstructure:"batch_size"`

	// Security protocol: "PLAINTEXT", "SASL_PLAINTEXT", "SASL_SSL"
	// only support PLAINTEXT for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol"`

	// Max retries for kafka producer
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`
}

// DefaultProducerConfig returns the default producer configuration
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Acks:             "all",
		Compression:      "none",
		LingerMs:         0,
		BatchSize:        100 * 1024, // 100KB
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
	}
}

func (p *ProducerConfig) Validate() error {
	if len(p.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	return nil
}

func (p *ProducerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(p.Brokers, ","),
		"compression.type":  strings.ToLower(p.Compression),
		"acks":              strings.ToLower(p.Acks),
		"linger.ms":         p.LingerMs,
		"batch.size":        p.BatchSize,
		"retries":           p.MaxRetries,
		"security.protocol": p.SecurityProtocol,
	}

	if p.ClientID != "" {
		_ = configMap.SetKey("client.id", p.ClientID)
	}

	return configMap
}

// PublisherConfig is the configuration for the task event publisher
type PublisherConfig struct {
	// Topic task events are produced to
	Topic string `mapstructure:"topic"`

	// Events selects which event types are published: "start", "success", "failure".
	// default: all three
	Events []string `mapstructure:"events"`

	// Source is written to every event, identifying the publishing process.
	// default: ""
	Source string `mapstructure:"source"`

	// ProduceTimeout bounds a single Produce call
	// default: 5s
	ProduceTimeout time.Duration `mapstructure:"produce_timeout"`
}

// DefaultPublisherConfig returns the default publisher configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		Events:         []string{EventStart, EventSuccess, EventFailure},
		ProduceTimeout: 5 * time.Second,
	}
}

// Validate validates the publisher configuration
func (c *PublisherConfig) Validate() error {
	if c.Topic == "" {
		return ErrInvalidConfig("topic is required")
	}
	if len(c.Events) == 0 {
		return ErrInvalidConfig("at least one event type is required")
	}
	for _, e := range c.Events {
		switch e {
		case EventStart, EventSuccess, EventFailure:
		default:
			return ErrInvalidConfig("unknown event type: " + e)
		}
	}
	if c.ProduceTimeout <= 0 {
		return ErrInvalidConfig("produce_timeout must be greater than 0")
	}
	return nil
}

package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// validateKafkaCluster validates the kafka cluster connection
func validateKafkaCluster(log logger.Logger, brokers []string) error {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": 10000, // 10s
	}

	var adminClient *kafka.AdminClient
	err := retry(log, "create kafka admin client", 3, 2*time.Second, func() error {
		var err error
		adminClient, err = kafka.NewAdminClient(configMap)
		return err
	})
	if err != nil {
		return err
	}
	defer adminClient.Close()

	// try to get cluster metadata to verify connection
	if _, err := adminClient.GetMetadata(nil, false, int((10 * time.Second).Milliseconds())); err != nil {
		return fmt.Errorf("failed to connect to Kafka brokers: %w", err)
	}

	log.Info("Kafka brokers connection validated", zap.Strings("brokers", brokers))
	return nil
}

// retry runs fn up to attempts times, sleeping delay between failures.
func retry(log logger.Logger, op string, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			log.Warn("kafka operation failed, retrying...",
				zap.String("op", op),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", attempts),
			)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, attempts, err)
}

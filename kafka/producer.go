package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	"go.uber.org/zap"
)

// flushTimeout bounds how long Close waits for queued messages
const flushTimeout = 10 * time.Second

type defaultProducer struct {
	logger logger.Logger

	p *kafka.Producer

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewProducer creates a new kafka producer after checking that the cluster
// answers a metadata request.
func NewProducer(log logger.Logger, config *ProducerConfig) (Producer, error) {
	log = logger.OrNop(log)
	if config == nil {
		config = DefaultProducerConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := validateKafkaCluster(log, config.Brokers); err != nil {
		return nil, ErrConnection(err)
	}

	var producer *kafka.Producer
	err := retry(log, "create kafka producer", 3, 3*time.Second, func() error {
		var err error
		producer, err = kafka.NewProducer(config.BuildConfigMap())
		return err
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	kp := &defaultProducer{
		p:      producer,
		logger: log,
		done:   make(chan struct{}),
	}

	kp.wg.Add(1)
	routine.GoNamed(log, "kafka-delivery-reports", kp.handleDeliveryReports)

	log.Info("kafka producer initialized and validated", zap.Strings("brokers", config.Brokers))
	return kp, nil
}

// handleDeliveryReports logs delivery failures until the producer closes
func (kp *defaultProducer) handleDeliveryReports() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.done:
			return
		case e, ok := <-kp.p.Events():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.logger.Error("failed to deliver task event",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", topicOf(ev.TopicPartition)),
						zap.ByteString("key", ev.Key),
					)
				} else {
					kp.logger.Debug("task event delivered",
						zap.String("topic", topicOf(ev.TopicPartition)),
						zap.Int32("partition", ev.TopicPartition.Partition),
						zap.Int64("offset", int64(ev.TopicPartition.Offset)),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
				if ev.Code() == kafka.ErrAllBrokersDown {
					kp.logger.Error("all kafka brokers are down", zap.Error(ev))
				}
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

func topicOf(tp kafka.TopicPartition) string {
	if tp.Topic == nil {
		return ""
	}
	return *tp.Topic
}

// Produce queues msg for delivery. Delivery failures are reported
// asynchronously through the logger.
func (kp *defaultProducer) Produce(ctx context.Context, msg *Message) error {
	if msg.TopicPartition.Topic == nil {
		return ErrInvalidConfig("topic is required")
	}
	if msg.Value == nil {
		return ErrInvalidConfig("value is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: kafka.PartitionAny,
		},
		Value:     msg.Value,
		Key:       msg.Key,
		Timestamp: msg.Timestamp,
	}
	if msg.TopicPartition.Partition != PartitionAny {
		message.TopicPartition.Partition = msg.TopicPartition.Partition
	}
	for _, header := range msg.Headers {
		message.Headers = append(message.Headers, kafka.Header{Key: header.Key, Value: header.Value})
	}

	return kp.p.Produce(message, nil)
}

// Close flushes queued messages and closes the kafka producer
func (kp *defaultProducer) Close() error {
	kp.closeOnce.Do(func() {
		remaining := kp.p.Flush(int(flushTimeout.Milliseconds()))
		if remaining > 0 {
			kp.logger.Warn("task events left unflushed at shutdown", zap.Int("remaining", remaining))
		}
		close(kp.done)
		kp.wg.Wait()
		kp.p.Close()
	})
	return nil
}

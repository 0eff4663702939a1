package kafka

import (
	"context"
	"encoding/json"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// Event types
const (
	EventStart   = "start"
	EventSuccess = "success"
	EventFailure = "failure"
)

// TaskEvent is the JSON payload of one published event.
type TaskEvent struct {
	TaskID  cron.TaskID `json:"task_id"`
	Backend string      `json:"backend"`
	Type    string      `json:"type"`
	Error   string      `json:"error,omitempty"`
	Source  string      `json:"source,omitempty"`
	At      time.Time   `json:"at"`
}

// EventPublisher is a cron.Listener producing a TaskEvent per notification,
// keyed by task id so that the events of one task stay ordered.
type EventPublisher struct {
	producer Producer
	config   *PublisherConfig
	logger   logger.Logger
	now      func() time.Time

	closed    atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
}

// NewEventPublisher creates a publisher producing to config.Topic.
// Empty fields of config fall back to DefaultPublisherConfig.
func NewEventPublisher(producer Producer, config *PublisherConfig, log logger.Logger) (*EventPublisher, error) {
	if producer == nil {
		return nil, ErrInvalidConfig("producer is required")
	}
	cfg := DefaultPublisherConfig()
	if config != nil {
		cfg.Topic = config.Topic
		cfg.Source = config.Source
		if len(config.Events) > 0 {
			cfg.Events = config.Events
		}
		if config.ProduceTimeout > 0 {
			cfg.ProduceTimeout = config.ProduceTimeout
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EventPublisher{
		producer: producer,
		config:   cfg,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}, nil
}

// ListenerName makes publishers to the same topic the same listener.
func (p *EventPublisher) ListenerName() string {
	return "kafka:" + p.config.Topic
}

func (p *EventPublisher) OnStart(id cron.TaskID) {
	p.publish(id, EventStart, nil)
}

func (p *EventPublisher) OnSuccess(id cron.TaskID) {
	p.publish(id, EventSuccess, nil)
}

func (p *EventPublisher) OnFailure(id cron.TaskID, err error) {
	p.publish(id, EventFailure, err)
}

// Published returns the number of events handed to the producer.
func (p *EventPublisher) Published() int64 { return p.published.Load() }

// Failed returns the number of events that could not be produced.
func (p *EventPublisher) Failed() int64 { return p.failed.Load() }

// Close stops publishing. The producer is left open.
func (p *EventPublisher) Close() {
	p.closed.Store(true)
}

func (p *EventPublisher) publish(id cron.TaskID, eventType string, taskErr error) {
	if !slices.Contains(p.config.Events, eventType) {
		return
	}
	if err := p.Publish(id, eventType, taskErr); err != nil {
		p.failed.Add(1)
		p.logger.Error("failed to publish task event",
			zap.String("task_id", string(id)),
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}
	p.published.Add(1)
}

// Publish produces one event regardless of the configured event filter.
func (p *EventPublisher) Publish(id cron.TaskID, eventType string, taskErr error) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	backend, _ := cron.BackendOf(id)
	event := TaskEvent{
		TaskID:  id,
		Backend: backend,
		Type:    eventType,
		Source:  p.config.Source,
		At:      p.now().UTC(),
	}
	if taskErr != nil {
		event.Error = taskErr.Error()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return ErrPublish(eventType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.ProduceTimeout)
	defer cancel()

	topic := p.config.Topic
	msg := &Message{
		Value:          value,
		Key:            []byte(id),
		Timestamp:      event.At,
		TopicPartition: TopicPartition{Topic: &topic, Partition: PartitionAny},
		Headers: []Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "backend", Value: []byte(backend)},
		},
	}
	if err := p.producer.Produce(ctx, msg); err != nil {
		return ErrPublish(eventType, err)
	}
	return nil
}

var _ cron.NamedListener = (*EventPublisher)(nil)

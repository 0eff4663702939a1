package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (f *fakeProducer) Produce(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) sent() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Message(nil), f.msgs...)
}

func TestEventPublisher_PublishesLifecycle(t *testing.T) {
	fp := &fakeProducer{}
	pub, err := NewEventPublisher(fp, &PublisherConfig{Topic: "cron-events", Source: "worker-1"}, nil)
	require.NoError(t, err)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pub.now = func() time.Time { return at }

	id := cron.NewCodec("crontab").Encode(cron.IntKey(3))
	pub.OnStart(id)
	pub.OnSuccess(id)
	pub.OnFailure(id, errors.New("disk full"))

	msgs := fp.sent()
	require.Len(t, msgs, 3)
	assert.EqualValues(t, 3, pub.Published())

	var ev TaskEvent
	require.NoError(t, json.Unmarshal(msgs[2].Value, &ev))
	assert.Equal(t, TaskEvent{
		TaskID:  id,
		Backend: "crontab",
		Type:    EventFailure,
		Error:   "disk full",
		Source:  "worker-1",
		At:      at,
	}, ev)

	assert.Equal(t, []byte(id), msgs[0].Key)
	assert.Equal(t, "cron-events", *msgs[0].TopicPartition.Topic)
	assert.Equal(t, []byte(EventStart), msgs[0].GetHeader("event_type"))
	assert.Equal(t, []byte("crontab"), msgs[1].GetHeader("backend"))
}

func TestEventPublisher_EventFilter(t *testing.T) {
	fp := &fakeProducer{}
	pub, err := NewEventPublisher(fp, &PublisherConfig{Topic: "t", Events: []string{EventFailure}}, nil)
	require.NoError(t, err)

	pub.OnStart("id")
	pub.OnSuccess("id")
	pub.OnFailure("id", errors.New("x"))
	assert.Len(t, fp.sent(), 1)
}

func TestEventPublisher_ProduceFailureLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	fp := &fakeProducer{err: errors.New("queue full")}
	pub, err := NewEventPublisher(fp, &PublisherConfig{Topic: "t"}, zap.New(core))
	require.NoError(t, err)

	assert.NotPanics(t, func() { pub.OnSuccess("id") })
	assert.EqualValues(t, 1, pub.Failed())
	assert.Equal(t, 1, logs.FilterMessage("failed to publish task event").Len())
}

func TestEventPublisher_Closed(t *testing.T) {
	pub, err := NewEventPublisher(&fakeProducer{}, &PublisherConfig{Topic: "t"}, nil)
	require.NoError(t, err)
	pub.Close()
	assert.ErrorIs(t, pub.Publish("id", EventStart, nil), ErrPublisherClosed)
}

func TestNewEventPublisher_Validation(t *testing.T) {
	_, err := NewEventPublisher(nil, &PublisherConfig{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = NewEventPublisher(&fakeProducer{}, &PublisherConfig{}, nil)
	assert.Error(t, err)
	_, err = NewEventPublisher(&fakeProducer{}, &PublisherConfig{Topic: "t", Events: []string{"finish"}}, nil)
	assert.Error(t, err)
}

func TestEventPublisher_ListenerIdentity(t *testing.T) {
	a, err := NewEventPublisher(&fakeProducer{}, &PublisherConfig{Topic: "t"}, nil)
	require.NoError(t, err)
	b, err := NewEventPublisher(&fakeProducer{}, &PublisherConfig{Topic: "t"}, nil)
	require.NoError(t, err)

	ka, err := cron.ListenerKey(a)
	require.NoError(t, err)
	kb, err := cron.ListenerKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig()
	assert.Error(t, cfg.Validate())

	cfg.Brokers = []string{"a:9092", "b:9092"}
	cfg.ClientID = "crond"
	require.NoError(t, cfg.Validate())
	m := cfg.BuildConfigMap()
	v, err := m.Get("bootstrap.servers", nil)
	require.NoError(t, err)
	assert.Equal(t, "a:9092,b:9092", v)
	v, err = m.Get("client.id", nil)
	require.NoError(t, err)
	assert.Equal(t, "crond", v)
}

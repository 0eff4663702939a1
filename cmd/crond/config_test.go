package main

import (
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron/crontab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseFile(t *testing.T) {
	f, err := parseFile([]byte(`
backend: platform
properties:
  pool_size: 2
  await_termination: 5s
log:
  level: debug
tasks:
  - name: hello
    spec: "*/5 * * * * *"
    command: echo hello
    timeout: 1m
`), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "platform", f.Backend)
	assert.EqualValues(t, 2, f.Properties["pool_size"])
	assert.Equal(t, "debug", f.Log.Level)
	assert.Equal(t, "json", f.Log.Encoding)
	assert.Nil(t, f.Kafka)
	assert.Nil(t, f.ClickHouse)
	require.Len(t, f.Tasks, 1)
	assert.Equal(t, TaskConfig{Name: "hello", Spec: "*/5 * * * * *", Command: "echo hello", Timeout: time.Minute}, f.Tasks[0])
	assert.Equal(t, "platform", f.backend().Name())
}

func TestParseFileDefaults(t *testing.T) {
	f, err := parseFile([]byte(`tasks: []`), nil)
	require.NoError(t, err)
	assert.Equal(t, crontab.Name, f.Backend)
	assert.Equal(t, "info", f.Log.Level)
	assert.Empty(t, f.Tasks)
}

func TestParseFileSinks(t *testing.T) {
	f, err := parseFile([]byte(`
kafka:
  producer:
    brokers: [localhost:9092]
  publisher:
    topic: cron-events
clickhouse:
  hosts: [localhost:9000]
  username: default
  password: secret
  recorder:
    flush_size: 10
    min_flush_size: 1
`), nil)
	require.NoError(t, err)

	require.NotNil(t, f.Kafka)
	assert.Equal(t, []string{"localhost:9092"}, f.Kafka.Producer.Brokers)
	assert.Equal(t, "all", f.Kafka.Producer.Acks)
	assert.Equal(t, "cron-events", f.Kafka.Publisher.Topic)
	assert.Len(t, f.Kafka.Publisher.Events, 3)

	require.NotNil(t, f.ClickHouse)
	assert.Equal(t, "default", f.ClickHouse.Database)
	require.NotNil(t, f.ClickHouse.RecorderConfig)
	assert.Equal(t, "cron_executions", f.ClickHouse.RecorderConfig.Table)
	assert.Equal(t, 10, f.ClickHouse.RecorderConfig.FlushSize)
	assert.Equal(t, 10*time.Second, f.ClickHouse.RecorderConfig.FlushInterval)
}

func TestParseFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", `backend: quartz`},
		{"bad log level", "log:\n  level: loud"},
		{"task without name", "tasks:\n  - spec: '* * * * * *'\n    command: 'true'"},
		{"task without spec", "tasks:\n  - name: a\n    command: 'true'"},
		{"task without command", "tasks:\n  - name: a\n    spec: '* * * * * *'"},
		{"duplicate task", "tasks:\n  - {name: a, spec: '* * * * * *', command: 'true'}\n  - {name: a, spec: '* * * * * *', command: 'true'}"},
		{"kafka without brokers", "kafka:\n  publisher:\n    topic: t"},
		{"kafka without topic", "kafka:\n  producer:\n    brokers: [b:9092]"},
		{"clickhouse without hosts", "clickhouse:\n  username: u\n  password: p"},
		{"not yaml", "backend: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFile([]byte(tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}

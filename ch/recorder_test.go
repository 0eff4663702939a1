package ch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Execution
	err     error
}

func (f *fakeSink) Insert(_ context.Context, table string, rows []Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]Execution(nil), rows...))
	return nil
}

func (f *fakeSink) rows() []Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Execution
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func (f *fakeSink) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func testConfig() *RecorderConfig {
	cfg := DefaultRecorderConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.FlushSize = 3
	cfg.MinFlushSize = 0
	return cfg
}

func TestRecorder_RecordsExecutions(t *testing.T) {
	sink := &fakeSink{}
	rec, err := NewRecorder(sink, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	id := cron.NewCodec("minimal").Encode(cron.StringKey("abc"))
	rec.OnStart(id)
	rec.OnSuccess(id)
	rec.OnStart(id)
	rec.OnFailure(id, errors.New("timeout"))

	require.Eventually(t, func() bool { return len(sink.rows()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rec.Close())

	rows := sink.rows()
	assert.Equal(t, StatusSuccess, rows[0].Status)
	assert.Equal(t, "minimal", rows[0].Backend)
	assert.Equal(t, time.Second, rows[0].Duration())
	assert.Equal(t, StatusFailure, rows[1].Status)
	assert.Equal(t, "timeout", rows[1].Error)
	assert.EqualValues(t, 2, rec.Inserted())
}

func TestRecorder_FlushSizeTriggersBatch(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.FlushInterval = time.Hour
	rec, err := NewRecorder(sink, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Start())
	t.Cleanup(func() { _ = rec.Close() })

	for i := 0; i < 3; i++ {
		rec.OnSuccess("id")
	}
	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sink.rows(), 3)
}

func TestRecorder_MinFlushSizeHoldsSmallBatches(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.FlushSize = 10
	cfg.MinFlushSize = 5
	cfg.MaxWaitTime = 0
	rec, err := NewRecorder(sink, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	rec.OnSuccess("id")
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, sink.batchCount())

	require.NoError(t, rec.Close())
	assert.Len(t, sink.rows(), 1, "close flushes what is buffered")
}

func TestRecorder_CloseWithoutStartFlushes(t *testing.T) {
	sink := &fakeSink{}
	rec, err := NewRecorder(sink, testConfig(), nil)
	require.NoError(t, err)

	rec.OnSuccess("id")
	require.NoError(t, rec.Close())
	assert.Len(t, sink.rows(), 1)

	assert.ErrorIs(t, rec.Write(Execution{}), ErrRecorderClosed)
	assert.ErrorIs(t, rec.Start(), ErrRecorderClosed)
	require.NoError(t, rec.Close())
}

func TestRecorder_InsertFailureCountsDropped(t *testing.T) {
	sink := &fakeSink{err: errors.New("table missing")}
	rec, err := NewRecorder(sink, testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	rec.OnSuccess("id")
	require.NoError(t, rec.Close())
	assert.EqualValues(t, 1, rec.Dropped())
	assert.Zero(t, rec.Inserted())
}

func TestRecorderConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultRecorderConfig().Validate())

	cfg := DefaultRecorderConfig()
	cfg.Table = "drop table; --"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidTable)

	cfg = DefaultRecorderConfig()
	cfg.MinFlushSize = cfg.FlushSize + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultRecorderConfig()
	cfg.Table = "history.cron_executions"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.Hosts = []string{"localhost:9000"}
	cfg.Username = "default"
	cfg.Password = "secret"
	require.NoError(t, cfg.Validate())

	cfg.RecorderConfig = &RecorderConfig{}
	assert.Error(t, cfg.Validate())
}

func TestCreateTableDDL(t *testing.T) {
	ddl := createTableDDL("cron_executions")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS cron_executions")
	assert.Contains(t, ddl, "duration_ms Int64")
}

func TestNewRecorder_RequiresSink(t *testing.T) {
	_, err := NewRecorder(nil, nil, nil)
	assert.Error(t, err)
}

func TestRecorder_CloseFlushesPendingRows(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.FlushSize = 100
	cfg.FlushInterval = time.Hour
	core, logs := observer.New(zap.InfoLevel)
	rec, err := NewRecorder(sink, cfg, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	for i := range 5 {
		require.NoError(t, rec.Write(Execution{TaskID: cron.TaskID(fmt.Sprint(i)), Status: StatusSuccess}))
	}
	require.NoError(t, rec.Close())

	assert.Len(t, sink.rows(), 5)
	assert.Equal(t, 1, sink.batchCount())
	assert.EqualValues(t, 5, rec.Inserted())

	stopping := logs.FilterMessage("process loop stopping, flushing remaining rows").All()
	require.Len(t, stopping, 1)
	fields := stopping[0].ContextMap()
	assert.EqualValues(t, 5, fields["buffered_rows"].(int64)+fields["drained_rows"].(int64))
}

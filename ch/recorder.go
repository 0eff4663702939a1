package ch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

// Recorder is a cron.Listener turning start/finish notifications into
// Execution rows. Rows are buffered on an unbounded channel and flushed to
// the Sink in batches, so notifications never wait for ClickHouse.
type Recorder struct {
	sink   Sink
	config *RecorderConfig
	logger logger.Logger
	now    func() time.Time

	// start times of running executions, keyed by task id
	starts sync.Map

	dataChan *chanx.UnboundedChan[Execution]

	// control
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool

	inserted atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder creates a recorder flushing to sink. nil config means
// DefaultRecorderConfig. The recorder buffers from creation and flushes
// once started.
func NewRecorder(sink Sink, config *RecorderConfig, log logger.Logger) (*Recorder, error) {
	if sink == nil {
		return nil, ErrInvalidConfig("sink is required")
	}
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	r := &Recorder{
		sink:     sink,
		config:   config,
		logger:   log,
		now:      time.Now,
		dataChan: chanx.NewUnboundedChan[Execution](context.Background(), config.FlushSize),
		done:     make(chan struct{}),
	}

	log.Info("clickhouse recorder initialized",
		zap.String("table", config.Table),
		zap.Duration("flush_interval", config.FlushInterval),
		zap.Int("flush_size", config.FlushSize),
		zap.Int("min_flush_size", config.MinFlushSize),
		zap.Duration("max_wait_time", config.MaxWaitTime),
	)
	return r, nil
}

// Start starts the flush loop. Starting twice is a no-op.
func (r *Recorder) Start() error {
	if r.closed.Load() {
		return ErrRecorderClosed
	}
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}
	r.wg.Add(1)
	routine.GoNamed(r.logger, "ch-recorder", r.processLoop)
	r.logger.Info("clickhouse recorder started")
	return nil
}

// ListenerName makes recorders writing to the same table the same listener.
func (r *Recorder) ListenerName() string {
	return "clickhouse:" + r.config.Table
}

func (r *Recorder) OnStart(id cron.TaskID) {
	r.starts.Store(id, r.now())
}

func (r *Recorder) OnSuccess(id cron.TaskID) {
	r.record(id, StatusSuccess, nil)
}

func (r *Recorder) OnFailure(id cron.TaskID, err error) {
	r.record(id, StatusFailure, err)
}

// Inserted returns the number of rows written successfully.
func (r *Recorder) Inserted() int64 { return r.inserted.Load() }

// Dropped returns the number of rows lost to closed buffers or failed inserts.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) record(id cron.TaskID, status string, taskErr error) {
	row := Execution{
		TaskID:     id,
		Status:     status,
		FinishedAt: r.now(),
	}
	row.Backend, _ = cron.BackendOf(id)
	if v, ok := r.starts.LoadAndDelete(id); ok {
		row.StartedAt = v.(time.Time)
	}
	if taskErr != nil {
		row.Error = taskErr.Error()
	}
	if err := r.Write(row); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("execution not recorded", zap.String("task_id", string(id)), zap.Error(err))
	}
}

// Write buffers rows for the next flush.
func (r *Recorder) Write(rows ...Execution) (err error) {
	if r.closed.Load() {
		return ErrRecorderClosed
	}
	// Close may close the channel between the check and the send
	defer func() {
		if recover() != nil {
			err = ErrRecorderClosed
		}
	}()
	for _, row := range rows {
		r.dataChan.In <- row
	}
	return nil
}

// Close stops accepting rows, flushes what is buffered and stops the loop.
func (r *Recorder) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.logger.Info("clickhouse recorder shutting down")
	close(r.done)
	close(r.dataChan.In)
	if r.started.Load() {
		r.wg.Wait()
	} else {
		// never started: flush what was buffered in place
		var buffer []Execution
		r.drainChannel(&buffer)
		r.flush(buffer)
	}
	r.logger.Info("clickhouse recorder shutdown complete")
	return nil
}

func (r *Recorder) processLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	var buffer []Execution
	var firstDataTime time.Time

	for {
		select {
		case row, ok := <-r.dataChan.Out:
			if !ok {
				r.flush(buffer)
				return
			}
			if len(buffer) == 0 {
				firstDataTime = time.Now()
			}
			buffer = append(buffer, row)
			if len(buffer) >= r.config.FlushSize {
				r.flush(buffer)
				buffer = nil
			}

		case <-ticker.C:
			if len(buffer) > 0 && r.shouldFlush(len(buffer), firstDataTime) {
				r.flush(buffer)
				buffer = nil
			}

		case <-r.done:
			buffered := len(buffer)
			r.drainChannel(&buffer)
			r.logger.Info("process loop stopping, flushing remaining rows",
				zap.Int("buffered_rows", buffered),
				zap.Int("drained_rows", len(buffer)-buffered),
			)
			r.flush(buffer)
			r.logger.Info("process loop stopped")
			return
		}
	}
}

// shouldFlush determines whether to flush based on MinFlushSize and MaxWaitTime strategy
func (r *Recorder) shouldFlush(totalRows int, firstDataTime time.Time) bool {
	if r.config.MinFlushSize == 0 || totalRows >= r.config.MinFlushSize {
		return true
	}
	if r.config.MaxWaitTime > 0 && time.Since(firstDataTime) >= r.config.MaxWaitTime {
		r.logger.Debug("max wait time exceeded, forcing flush",
			zap.Int("current_rows", totalRows),
			zap.Duration("waited", time.Since(firstDataTime)),
		)
		return true
	}
	return false
}

// drainChannel moves everything left in the channel into buffer. The input
// side is closed, so Out closes once chanx has handed over its backlog.
func (r *Recorder) drainChannel(buffer *[]Execution) {
	for row := range r.dataChan.Out {
		*buffer = append(*buffer, row)
	}
}

func (r *Recorder) flush(rows []Execution) {
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.config.InsertTimeout)
	defer cancel()

	if err := r.sink.Insert(ctx, r.config.Table, rows); err != nil {
		r.dropped.Add(int64(len(rows)))
		r.logger.Error("failed to batch insert executions",
			zap.String("table", r.config.Table),
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		return
	}
	r.inserted.Add(int64(len(rows)))
	r.logger.Debug("flush completed", zap.String("table", r.config.Table), zap.Int("rows", len(rows)))
}

var _ cron.NamedListener = (*Recorder)(nil)

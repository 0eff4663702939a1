package platform

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/cron/crontest"
	"github.com/dailyyoga/cronkit/cron/enterprise"
	"github.com/dailyyoga/cronkit/routine"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConformance(t *testing.T) {
	crontest.Run(t, crontest.Suite{Backend: Backend(), Properties: cron.Properties{"pool_size": 2}, Foreign: enterprise.Backend()})
}

func TestConformance_ExternalExecutor(t *testing.T) {
	pool, err := routine.NewPool(zaptest.NewLogger(t), "test-executor", 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close(true) })

	crontest.Run(t, crontest.Suite{
		Backend: Backend(),
		Options: []cron.Option{cron.WithExecutor(pool)},
	})
}

func TestRegister_KeysAreXIDs(t *testing.T) {
	r, err := New(cron.Environment{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })

	id, err := r.Register("@every 1h", crontest.Noop())
	require.NoError(t, err)
	key, err := r.codec.DecodeString(id)
	require.NoError(t, err)
	_, err = xid.FromString(string(key))
	assert.NoError(t, err)
}

func TestScheduler_RequiresSeconds(t *testing.T) {
	s, err := NewScheduler(nil, nil)
	require.NoError(t, err)
	task := cron.TaskFunc("t", func(context.Context) error { return nil })

	assert.Error(t, s.Schedule("a", "0 0 1 1 *", task))
	assert.NoError(t, s.Schedule("b", crontest.Yearly, task))
	assert.NoError(t, s.Schedule("c", "@daily", task))
	assert.ErrorIs(t, s.Schedule("b", crontest.Yearly, task), ErrDuplicateTask)
}

type observer struct{ before, after atomic.Int32 }

func (o *observer) BeforeExecute(string)       { o.before.Add(1) }
func (o *observer) AfterExecute(string, error) { o.after.Add(1) }

func TestScheduler_ObserversAndWorkers(t *testing.T) {
	s, err := NewScheduler(&Config{PoolSize: 3, ThreadNamePrefix: "w-", Location: "UTC"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	o := &observer{}
	s.AddObserver(o)
	s.AddObserver(o)
	assert.Len(t, s.Observers(), 1)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("tick", crontest.EverySecond, cron.TaskFunc("tick", func(context.Context) error {
		runs.Add(1)
		return nil
	})))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return o.after.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	s.Stop(true)
	assert.Equal(t, runs.Load(), o.after.Load())
	assert.Equal(t, o.before.Load(), o.after.Load())

	s.RemoveObserver(o)
	assert.Empty(t, s.Observers())
	assert.ErrorIs(t, s.Start(), ErrSchedulerStopped)
}

func TestScheduler_AwaitTerminationBoundsStop(t *testing.T) {
	s, err := NewScheduler(&Config{PoolSize: 1, ThreadNamePrefix: "w-", AwaitTermination: 100 * time.Millisecond, Location: "UTC"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	require.NoError(t, s.Schedule("slow", crontest.EverySecond, cron.TaskFunc("slow", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})))
	require.NoError(t, s.Start())
	<-started

	begin := time.Now()
	s.Stop(true)
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(cron.Environment{Properties: cron.Properties{"pool_size": -1}})
	assert.ErrorIs(t, err, cron.ErrEngineStart)
	_, err = New(cron.Environment{Properties: cron.Properties{"await_termination": "-1s"}})
	assert.ErrorIs(t, err, cron.ErrEngineStart)

	r, err := New(cron.Environment{Properties: cron.Properties{"pool_size": "4", "await_termination": "250ms"}})
	require.NoError(t, err)
	assert.Equal(t, 4, r.cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, r.cfg.AwaitTermination)
}

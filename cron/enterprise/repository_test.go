package enterprise

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/cron/crontab"
	"github.com/dailyyoga/cronkit/cron/crontest"
	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestConformance(t *testing.T) {
	crontest.Run(t, crontest.Suite{Backend: Backend(), Foreign: crontab.Backend()})
}

func open(t *testing.T, props cron.Properties) *Repository {
	t.Helper()
	r, err := New(cron.Environment{Properties: props, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func TestNew_ThreadCountDefaultsAfterRetry(t *testing.T) {
	r := open(t, nil)
	assert.Equal(t, runtime.NumCPU()+1, r.Config().ThreadCount)
}

func TestNew_ExplicitThreadCount(t *testing.T) {
	r := open(t, cron.Properties{"thread_count": "3"})
	assert.Equal(t, 3, r.Config().ThreadCount)
}

func TestNewScheduler_Retry(t *testing.T) {
	tests := []struct {
		name        string
		threadCount int
		stopTimeout time.Duration
		wantErr     error
		wantThreads int
		wantRetries int
	}{
		{"configured", 3, time.Second, nil, 3, 0},
		{"unset limit is corrected", 0, time.Second, nil, runtime.NumCPU() + 1, 1},
		{"other failure is not retried", 3, 0, gocron.ErrWithStopTimeoutZeroOrNegative, 3, 0},
		{"corrected attempt is the last", 0, 0, gocron.ErrWithStopTimeoutZeroOrNegative, runtime.NumCPU() + 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			cfg := DefaultConfig()
			cfg.ThreadCount = tt.threadCount
			cfg.StopTimeout = tt.stopTimeout

			s, err := newScheduler(cfg, zap.New(core))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
			} else {
				require.NoError(t, err)
				require.NoError(t, s.Shutdown())
			}
			assert.Equal(t, tt.wantThreads, cfg.ThreadCount)
			assert.Equal(t, tt.wantRetries, logs.FilterMessage("thread_count not configured, retrying with default").Len())
		})
	}
}

func TestNew_InvalidProperties(t *testing.T) {
	_, err := New(cron.Environment{Properties: cron.Properties{"limit_mode": "drop"}})
	assert.ErrorIs(t, err, cron.ErrEngineStart)

	_, err = New(cron.Environment{Properties: cron.Properties{"thread_count": -1}})
	assert.ErrorIs(t, err, cron.ErrEngineStart)
}

func TestNew_NativeScheduler(t *testing.T) {
	s, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(2, gocron.LimitModeWait))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	r, err := New(cron.Environment{Native: s})
	require.NoError(t, err)
	assert.Same(t, s, r.Scheduler())

	_, err = New(cron.Environment{Native: 42})
	assert.ErrorIs(t, err, cron.ErrPrecondition)
}

func TestRegister_CompositeKeys(t *testing.T) {
	r := open(t, nil)

	id, err := r.Register(crontest.Yearly, cron.Func("report", func(context.Context) error { return nil }))
	require.NoError(t, err)
	key, err := r.codec.DecodeComposite(id)
	require.NoError(t, err)
	assert.Equal(t, cron.CompositeKey{Name: "report", Group: DefaultGroup}, key)

	j, err := r.Job(id)
	require.NoError(t, err)
	assert.Equal(t, "report", j.Name())
	assert.Contains(t, j.Tags(), DefaultGroup)

	_, err = r.Register(crontest.Yearly2, cron.Func("report", func(context.Context) error { return nil }))
	assert.ErrorIs(t, err, cron.ErrRegistrationFailed)
	assert.ErrorIs(t, err, ErrJobExists)
}

func TestRegister_AnonymousTaskGetsUUIDName(t *testing.T) {
	r := open(t, nil)

	id, err := r.Register(crontest.Yearly, cron.Func("", func(context.Context) error { return nil }))
	require.NoError(t, err)
	key, err := r.codec.DecodeComposite(id)
	require.NoError(t, err)
	assert.Len(t, key.Name, 36)
}

func TestRegister_MethodReferenceNeedsFactory(t *testing.T) {
	r := open(t, nil)

	_, err := r.Register(crontest.Yearly, cron.MethodReference{TypeName: "Billing", MethodName: "Close"})
	assert.ErrorIs(t, err, cron.ErrPrecondition)
}

type billing struct{ closed atomic.Int32 }

func (b *billing) Close() error {
	b.closed.Add(1)
	return nil
}

func TestRegister_MethodReferenceResolvedOnFiring(t *testing.T) {
	r := open(t, nil)
	b := &billing{}
	reg := cron.NewMethodRegistry()
	require.NoError(t, reg.Register("Billing", b))

	var resolutions atomic.Int32
	r.SetJobFactory(cron.ResolverFunc(func(typeName, methodName string) (cron.Task, error) {
		resolutions.Add(1)
		return reg.Resolve(typeName, methodName)
	}))

	id, err := r.Register(crontest.EverySecond, cron.MethodReference{TypeName: "Billing", MethodName: "Close"})
	require.NoError(t, err)
	key, err := r.codec.DecodeComposite(id)
	require.NoError(t, err)
	assert.Equal(t, cron.CompositeKey{Name: "Close", Group: "Billing"}, key)

	require.Eventually(t, func() bool { return b.closed.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, resolutions.Load(), int32(2))
}

type namedJobListener struct {
	name string
	runs atomic.Int32
}

func (l *namedJobListener) Name() string                            { return l.name }
func (l *namedJobListener) JobToBeExecuted(cron.CompositeKey)       {}
func (l *namedJobListener) JobWasExecuted(cron.CompositeKey, error) { l.runs.Add(1) }

func TestListenerManager_NativeListeners(t *testing.T) {
	r := open(t, nil)
	l := &namedJobListener{name: "native"}

	assert.True(t, r.ListenerManager().AddJobListener(l))
	assert.False(t, r.ListenerManager().AddJobListener(&namedJobListener{name: "native"}))
	assert.Len(t, r.ListenerManager().JobListeners(), 1)

	_, err := r.Register(crontest.EverySecond, crontest.Noop())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	assert.True(t, r.ListenerManager().RemoveJobListener("native"))
	assert.Empty(t, r.ListenerManager().JobListeners())
}

package routine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// Pool runs submitted functions on at most Size goroutines at a time.
// Submit never blocks the caller; work beyond the limit waits for a slot.
type Pool interface {
	// Name returns the pool name, used as the routine name prefix in logs
	Name() string
	// Size returns the concurrency limit
	Size() int
	// Submit schedules fn for execution
	// Returns ErrPoolClosed after Close
	Submit(fn func()) error
	// Running returns the number of functions currently executing
	Running() int
	// Close stops accepting work and drops work still waiting for a slot.
	// With wait, it blocks until running functions return.
	Close(wait bool)
}

type boundedPool struct {
	name string
	size int
	log  logger.Logger

	runner  Runner
	slots   chan struct{}
	quit    chan struct{}
	seq     atomic.Uint64
	running atomic.Int32

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool named name that runs at most size functions concurrently.
func NewPool(log logger.Logger, name string, size int) (Pool, error) {
	if size <= 0 {
		return nil, ErrInvalidPoolSize(size)
	}
	log = logger.OrNop(log)
	p := &boundedPool{
		name:   name,
		size:   size,
		log:    log,
		runner: New(log),
		slots:  make(chan struct{}, size),
		quit:   make(chan struct{}),
	}
	log.Debug("pool created", zap.String("pool", name), zap.Int("size", size))
	return p, nil
}

func (p *boundedPool) Name() string { return p.name }

func (p *boundedPool) Size() int { return p.size }

func (p *boundedPool) Running() int { return int(p.running.Load()) }

func (p *boundedPool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	name := fmt.Sprintf("%s-%d", p.name, p.seq.Add(1))
	p.runner.GoNamed(name, func() {
		select {
		case p.slots <- struct{}{}:
		case <-p.quit:
			return
		}
		select {
		case <-p.quit:
			<-p.slots
			return
		default:
		}
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			<-p.slots
		}()
		fn()
	})
	return nil
}

func (p *boundedPool) Close(wait bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	p.log.Debug("pool closing", zap.String("pool", p.name), zap.Bool("wait", wait), zap.Int("running", p.Running()))
	if wait {
		p.runner.Wait()
	}
}

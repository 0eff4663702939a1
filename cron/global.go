package cron

import "sync"

var (
	globalMu     sync.Mutex
	globalFacade *Facade
)

// Init starts the process-wide repository on backend. While it is active a
// second Init fails with ErrAlreadyStarted; Shutdown releases it.
func Init(backend Backend, props Properties, opts ...Option) (*Facade, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalFacade != nil {
		return nil, ErrAlreadyStarted
	}
	c := NewController(backend, opts...)
	if err := c.Start(props); err != nil {
		return nil, err
	}
	globalFacade = NewFacade(c)
	return globalFacade, nil
}

// Default returns the process-wide repository, nil before Init.
func Default() *Facade {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalFacade
}

// Shutdown stops the process-wide repository. It is a no-op before Init.
func Shutdown() error {
	globalMu.Lock()
	f := globalFacade
	globalFacade = nil
	globalMu.Unlock()

	if f == nil {
		return nil
	}
	return f.Stop()
}

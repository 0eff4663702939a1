package platform

import (
	"fmt"
	"time"
)

// Config is the startup configuration of the platform backend.
type Config struct {
	// PoolSize is the number of workers draining the firing queue.
	// default: 1
	PoolSize int `mapstructure:"pool_size"`
	// ThreadNamePrefix names the worker goroutines in logs.
	// default: "cron-platform-"
	ThreadNamePrefix string `mapstructure:"thread_name_prefix"`
	// Daemon makes Stop return without waiting for running tasks.
	// default: false
	Daemon bool `mapstructure:"daemon"`
	// AwaitTermination bounds how long a non-daemon Stop waits. Zero waits
	// until every running task has returned.
	// default: 0
	AwaitTermination time.Duration `mapstructure:"await_termination"`
	// Location is the time zone expressions are evaluated in.
	// default: "Local"
	Location string `mapstructure:"location"`
}

// DefaultConfig returns the default configuration of the platform backend
func DefaultConfig() *Config {
	return &Config{
		PoolSize:         1,
		ThreadNamePrefix: "cron-platform-",
		Location:         "Local",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("platform: invalid pool_size: %d (must be > 0)", c.PoolSize)
	}
	if c.AwaitTermination < 0 {
		return fmt.Errorf("platform: invalid await_termination: %v (must be >= 0)", c.AwaitTermination)
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("platform: invalid location %q: %w", c.Location, err)
	}
	return nil
}

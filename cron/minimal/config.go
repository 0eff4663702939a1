package minimal

import (
	"fmt"
	"runtime"
	"time"
)

// Config is the startup configuration of the minimal backend.
type Config struct {
	// PoolSize bounds concurrently running tasks.
	// default: runtime.NumCPU()
	PoolSize int `mapstructure:"pool_size"`
	// Daemon makes Stop return without waiting for running tasks.
	// default: false
	Daemon bool `mapstructure:"daemon"`
	// Location is the time zone expressions are evaluated in.
	// default: "Local"
	Location string `mapstructure:"location"`
}

// DefaultConfig returns the default configuration of the minimal backend
func DefaultConfig() *Config {
	return &Config{
		PoolSize: runtime.NumCPU(),
		Location: "Local",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("minimal: invalid pool_size: %d (must be > 0)", c.PoolSize)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("minimal: invalid location %q: %w", c.Location, err)
	}
	return loc, nil
}

package crontab

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Config is the startup configuration of the crontab backend.
type Config struct {
	// MatchSecond selects 6-field expressions whose first field is seconds.
	// When false, expressions use the standard 5 fields.
	// default: true
	MatchSecond bool `mapstructure:"match_second"`
	// Daemon makes Stop return without waiting for running tasks,
	// whose context is cancelled instead.
	// default: false
	Daemon bool `mapstructure:"daemon"`
	// Location is the time zone expressions are evaluated in.
	// default: "Local"
	Location string `mapstructure:"location"`
}

// DefaultConfig returns the default configuration of the crontab backend
func DefaultConfig() *Config {
	return &Config{
		MatchSecond: true,
		Daemon:      false,
		Location:    "Local",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("crontab: invalid location %q: %w", c.Location, err)
	}
	return loc, nil
}

func (c *Config) parser() cronlib.Parser {
	fields := cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor
	if c.MatchSecond {
		fields |= cronlib.Second
	}
	return cronlib.NewParser(fields)
}

package enterprise

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	cronlib "github.com/robfig/cron/v3"
)

// Config is the startup configuration of the enterprise backend.
type Config struct {
	// ThreadCount bounds concurrently running jobs. The engine refuses a
	// zero limit; when it is left unset the backend retries once with
	// runtime.NumCPU()+1.
	// default: unset
	ThreadCount int `mapstructure:"thread_count"`
	// LimitMode decides what happens to a firing while all threads are busy:
	// "wait" queues it, "reschedule" skips it.
	// default: "wait"
	LimitMode string `mapstructure:"limit_mode"`
	// MatchSecond selects 6-field expressions whose first field is seconds.
	// default: true
	MatchSecond bool `mapstructure:"match_second"`
	// StopTimeout bounds how long a non-daemon Stop waits for running jobs.
	// default: 30s
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// Daemon makes Stop return without waiting for running jobs.
	// default: false
	Daemon bool `mapstructure:"daemon"`
	// Location is the time zone expressions are evaluated in.
	// default: "Local"
	Location string `mapstructure:"location"`
}

// DefaultConfig returns the default configuration of the enterprise backend
func DefaultConfig() *Config {
	return &Config{
		LimitMode:   "wait",
		MatchSecond: true,
		StopTimeout: 30 * time.Second,
		Location:    "Local",
	}
}

// Validate validates the configuration. ThreadCount is left to the engine.
func (c *Config) Validate() error {
	if c.ThreadCount < 0 {
		return fmt.Errorf("enterprise: invalid thread_count: %d (must be >= 0)", c.ThreadCount)
	}
	if c.LimitMode != "wait" && c.LimitMode != "reschedule" {
		return fmt.Errorf("enterprise: invalid limit_mode %q, must be 'wait' or 'reschedule'", c.LimitMode)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("enterprise: invalid stop_timeout: %v (must be > 0)", c.StopTimeout)
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("enterprise: invalid location %q: %w", c.Location, err)
	}
	return nil
}

func (c *Config) limitMode() gocron.LimitMode {
	if c.LimitMode == "reschedule" {
		return gocron.LimitModeReschedule
	}
	return gocron.LimitModeWait
}

// schedulerOptions builds the engine options for one initialization attempt.
func (c *Config) schedulerOptions(log gocron.Logger) []gocron.SchedulerOption {
	loc, _ := time.LoadLocation(c.Location)
	return []gocron.SchedulerOption{
		gocron.WithLimitConcurrentJobs(uint(c.ThreadCount), c.limitMode()),
		gocron.WithStopTimeout(c.StopTimeout),
		gocron.WithLocation(loc),
		gocron.WithLogger(log),
	}
}

// parser mirrors the grammar the engine applies to CronJob definitions, so
// expressions are rejected before the engine is touched.
func (c *Config) parser() cronlib.Parser {
	fields := cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor
	if c.MatchSecond {
		fields |= cronlib.SecondOptional
	}
	return cronlib.NewParser(fields)
}

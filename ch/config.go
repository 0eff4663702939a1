package ch

import (
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Config struct {
	// clickhouse connection config
	Hosts       []string      `mapstructure:"hosts"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Debug       bool          `mapstructure:"debug"`
	// clickhouse settings (https://clickhouse.com/docs/en/operations/settings/settings)
	Settings clickhouse.Settings `mapstructure:"settings"`
	// execution recorder config, nil disables the recorder
	RecorderConfig *RecorderConfig `mapstructure:"recorder"`
}

type RecorderConfig struct {
	// Table executions are inserted into
	// default: "cron_executions"
	Table string `mapstructure:"table"`
	// FlushInterval is how often buffered executions are considered for a flush
	// default: 10s
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// FlushSize flushes as soon as this many executions are buffered
	// default: 1000
	FlushSize int `mapstructure:"flush_size"`
	// MinFlushSize is the minimum batch size for time-triggered flush.
	// Set to 0 to flush on every interval.
	// default: 100
	MinFlushSize int `mapstructure:"min_flush_size"`
	// MaxWaitTime is the maximum time to wait before flushing, regardless of buffer size.
	// Set to 0 to wait indefinitely for MinFlushSize.
	// default: 60s
	MaxWaitTime time.Duration `mapstructure:"max_wait_time"`
	// InsertTimeout bounds a single batch insert
	// default: 30s
	InsertTimeout time.Duration `mapstructure:"insert_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Database:    "default",
		DialTimeout: 10 * time.Second,
		Debug:       false,
	}
}

// DefaultRecorderConfig returns the default recorder config
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Table:         "cron_executions",
		FlushInterval: 10 * time.Second,
		FlushSize:     1000,
		MinFlushSize:  100,
		MaxWaitTime:   60 * time.Second,
		InsertTimeout: 30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Username == "" {
		return ErrInvalidConfig("username is required")
	}
	if c.Password == "" {
		return ErrInvalidConfig("password is required")
	}

	// validate recorder config only if it's set
	if c.RecorderConfig != nil {
		return c.RecorderConfig.Validate()
	}
	return nil
}

func (c *RecorderConfig) Validate() error {
	if !tableNameRe.MatchString(c.Table) {
		return ErrInvalidTable
	}
	if c.FlushInterval <= 0 {
		return ErrInvalidConfig("recorder.flush_interval is required")
	}
	if c.FlushSize <= 0 {
		return ErrInvalidConfig("recorder.flush_size is required")
	}
	if c.MinFlushSize < 0 {
		return ErrInvalidConfig("recorder.min_flush_size cannot be negative")
	}
	if c.MinFlushSize > c.FlushSize {
		return ErrInvalidConfig("recorder.min_flush_size cannot be greater than recorder.flush_size")
	}
	if c.MaxWaitTime < 0 {
		return ErrInvalidConfig("recorder.max_wait_time cannot be negative")
	}
	if c.InsertTimeout <= 0 {
		return ErrInvalidConfig("recorder.insert_timeout is required")
	}
	return nil
}

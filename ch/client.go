package ch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// defaultClient is the default implementation of the Client interface
type defaultClient struct {
	config *Config
	logger logger.Logger

	// clickhouse connection (shared by Recorder and Query)
	conn driver.Conn

	// recorder instance (lazy initialization)
	recorder *Recorder
	rmu      sync.Mutex

	// control
	closed bool
	mu     sync.RWMutex
}

// NewClient connects to ClickHouse and pings it
func NewClient(config *Config, log logger.Logger) (Client, error) {
	log = logger.OrNop(log)
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: config.Hosts,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: config.DialTimeout,
		Debug:       config.Debug,
		Settings:    config.Settings,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, ErrConnection(err)
	}

	client := &defaultClient{
		config: config,
		logger: log,
		conn:   conn,
	}

	log.Info("clickhouse client initialized",
		zap.Strings("hosts", config.Hosts),
		zap.String("database", config.Database),
	)

	return client, nil
}

// Recorder returns the execution recorder writing through this client.
// Returns ErrRecorderDisabled if RecorderConfig is not set
func (c *defaultClient) Recorder() (*Recorder, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	c.mu.RUnlock()

	if c.config.RecorderConfig == nil {
		return nil, ErrRecorderDisabled
	}

	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.recorder == nil {
		rec, err := NewRecorder(c, c.config.RecorderConfig, c.logger)
		if err != nil {
			return nil, err
		}
		c.recorder = rec
	}
	return c.recorder, nil
}

func (c *defaultClient) table() string {
	if c.config.RecorderConfig != nil {
		return c.config.RecorderConfig.Table
	}
	return DefaultRecorderConfig().Table
}

// EnsureTable creates the history table if it does not exist
func (c *defaultClient) EnsureTable(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}

	table := c.table()
	if !tableNameRe.MatchString(table) {
		return ErrInvalidTable
	}
	if err := c.conn.Exec(ctx, createTableDDL(table)); err != nil {
		return fmt.Errorf("ch: create table %s failed: %w", table, err)
	}
	c.logger.Info("execution history table ready", zap.String("table", table))
	return nil
}

func createTableDDL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"task_id String, "+
		"backend LowCardinality(String), "+
		"status LowCardinality(String), "+
		"error String, "+
		"started_at DateTime64(3), "+
		"finished_at DateTime64(3), "+
		"duration_ms Int64"+
		") ENGINE = MergeTree ORDER BY (backend, task_id, finished_at)", table)
}

// Insert batch inserts rows into table
func (c *defaultClient) Insert(ctx context.Context, table string, rows []Execution) error {
	if len(rows) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}

	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (task_id, backend, status, error, started_at, finished_at, duration_ms)", table))
	if err != nil {
		return ErrInsert(table, err)
	}

	for _, row := range rows {
		if err := batch.Append(
			string(row.TaskID),
			row.Backend,
			row.Status,
			row.Error,
			row.StartedAt,
			row.FinishedAt,
			row.Duration().Milliseconds(),
		); err != nil {
			_ = batch.Abort()
			return ErrInsert(table, err)
		}
	}

	if err := batch.Send(); err != nil {
		return ErrInsert(table, err)
	}
	return nil
}

// Query executes a ClickHouse query and returns driver.Rows
func (c *defaultClient) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		c.logger.Error("query failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, err
	}

	return rows, nil
}

// QueryRow executes a query that is expected to return at most one row
func (c *defaultClient) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.logger.Error("connection is closed", zap.String("query", query))
		return nil
	}

	return c.conn.QueryRow(ctx, query, args...)
}

// Close closes the recorder, if any, and the connection
func (c *defaultClient) Close() error {
	// the recorder flushes through Insert, so close it before taking the lock
	c.rmu.Lock()
	rec := c.recorder
	c.rmu.Unlock()
	if rec != nil {
		if err := rec.Close(); err != nil {
			c.logger.Error("failed to close recorder", zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.logger.Info("clickhouse client shutting down")
	if err := c.conn.Close(); err != nil {
		c.logger.Error("failed to close clickhouse connection", zap.Error(err))
		return err
	}
	c.logger.Info("clickhouse client shutdown complete")
	return nil
}

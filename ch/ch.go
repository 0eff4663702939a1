// Package ch records task executions in ClickHouse. Recorder is a
// cron.Listener that buffers finished executions and batch-inserts them
// through clickhouse-go:
//
//	client, err := ch.NewClient(cfg, log)
//	rec, err := client.Recorder()
//	_ = rec.Start()
//	err = repo.AddListener(rec)
package ch

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/cronkit/cron"
)

// Execution statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Execution is one finished task run, one row of the history table.
type Execution struct {
	TaskID     cron.TaskID
	Backend    string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took, zero when the start was not observed.
func (e Execution) Duration() time.Duration {
	if e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Sink persists batches of executions.
type Sink interface {
	Insert(ctx context.Context, table string, rows []Execution) error
}

// Client is the ClickHouse client backing recorders and history queries
type Client interface {
	Sink
	// Recorder returns the execution recorder. It is created on first use;
	// the caller starts it.
	Recorder() (*Recorder, error)
	// EnsureTable creates the history table if it does not exist
	EnsureTable(ctx context.Context) error
	// Query executes a ClickHouse query and returns driver.Rows
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	// QueryRow executes a query that is expected to return at most one row
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	// Close closes the recorder, if any, and the connection
	Close() error
}

package ch

import (
	"fmt"
)

var (
	// ErrRecorderClosed when recorder is closed
	ErrRecorderClosed = fmt.Errorf("ch: recorder is closed")

	// ErrConnectionClosed when connection is closed
	ErrConnectionClosed = fmt.Errorf("ch: connection is closed")

	// ErrInvalidTable invalid table name
	ErrInvalidTable = fmt.Errorf("ch: invalid table name")

	// ErrRecorderDisabled when recorder is not enabled (RecorderConfig is nil)
	ErrRecorderDisabled = fmt.Errorf("ch: recorder is disabled, please set RecorderConfig to enable")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("ch: invalid config: %s", msg)
}

// ErrConnection ClickHouse connection error
func ErrConnection(err error) error {
	return fmt.Errorf("ch: connection failed: %w", err)
}

// ErrInsert insert error
func ErrInsert(table string, err error) error {
	return fmt.Errorf("ch: insert to table %s failed: %w", table, err)
}

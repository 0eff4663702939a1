package routine

import "fmt"

var (
	// ErrPanicRecovered is returned when a panic is recovered in a goroutine
	ErrPanicRecovered = fmt.Errorf("routine: panic recovered")

	// ErrPoolClosed is returned when submitting to a closed pool
	ErrPoolClosed = fmt.Errorf("routine: pool is closed")
)

// ErrPanic returns an error wrapping the recovered panic value
func ErrPanic(recovered any) error {
	return fmt.Errorf("%w: %v", ErrPanicRecovered, recovered)
}

// ErrInvalidPoolSize returns an error for a non-positive pool size
func ErrInvalidPoolSize(size int) error {
	return fmt.Errorf("routine: invalid pool size: %d (must be > 0)", size)
}

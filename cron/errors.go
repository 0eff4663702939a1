package cron

import "fmt"

var (
	// ErrCronExpressionInvalid is returned when a backend rejects a cron expression
	ErrCronExpressionInvalid = fmt.Errorf("cron: invalid cron expression")

	// ErrTaskNotFound is returned when a task id does not name a task known to the engine
	ErrTaskNotFound = fmt.Errorf("cron: task not found")

	// ErrInvalidIdentifier is returned when a task id cannot be decoded
	ErrInvalidIdentifier = fmt.Errorf("cron: invalid task id")

	// ErrBackendMismatch is returned when a task id was issued by another backend
	ErrBackendMismatch = fmt.Errorf("cron: task id issued by another backend")

	// ErrEngineStart is returned when the engine cannot be initialized or started
	ErrEngineStart = fmt.Errorf("cron: engine failed to start")

	// ErrPrecondition is returned when a caller violates a documented precondition
	ErrPrecondition = fmt.Errorf("cron: precondition violated")

	// ErrRegistrationFailed is returned for engine-side scheduling failures
	ErrRegistrationFailed = fmt.Errorf("cron: registration failed")

	// ErrListenerOperationFailed is returned when the engine refuses a listener change
	ErrListenerOperationFailed = fmt.Errorf("cron: listener operation failed")

	// ErrEngineNotStarted is returned for task operations before Start
	ErrEngineNotStarted = fmt.Errorf("cron: engine not started")

	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = fmt.Errorf("cron: engine already started")

	// ErrControllerStopped is returned when starting a stopped controller
	ErrControllerStopped = fmt.Errorf("cron: controller is stopped")

	// ErrMethodNotFound is returned by a Resolver that cannot find the named method
	ErrMethodNotFound = fmt.Errorf("cron: method not found")
)

// ErrExpression wraps an engine parse failure for expr
func ErrExpression(expr string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %q", ErrCronExpressionInvalid, expr)
	}
	return fmt.Errorf("%w: %q: %w", ErrCronExpressionInvalid, expr, cause)
}

// ErrNotFound reports that id is unknown to the engine
func ErrNotFound(id TaskID) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// ErrMalformedID reports an id that does not decode
func ErrMalformedID(id TaskID, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidIdentifier, id, reason)
}

// ErrForeignID reports an id issued by backend got to a codec for backend want
func ErrForeignID(id TaskID, got, want string) error {
	return fmt.Errorf("%w: %s id %q used with %s", ErrBackendMismatch, got, id, want)
}

// ErrStart wraps an initialization failure of backend
func ErrStart(backend string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngineStart, backend, cause)
}

// ErrPreconditionf describes a precondition violation
func ErrPreconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// ErrRegister wraps an engine scheduling failure for expr
func ErrRegister(expr string, cause error) error {
	return fmt.Errorf("%w: %q: %w", ErrRegistrationFailed, expr, cause)
}

// ErrListener wraps an engine listener failure during op
func ErrListener(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrListenerOperationFailed, op, cause)
}

// ErrUnresolved reports a method reference a Resolver could not satisfy
func ErrUnresolved(typeName, methodName string) error {
	return fmt.Errorf("%w: %s.%s", ErrMethodNotFound, typeName, methodName)
}

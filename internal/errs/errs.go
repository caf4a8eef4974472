// Package errs defines the supervisor runtime's error taxonomy as sentinel
// errors. Callers discriminate kinds with errors.Is instead of type
// switching on concrete error types, matching the "kinds, not concrete
// types" framing used throughout the error handling design.
package errs

import "errors"

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", ErrX) at the
// point of failure so the kind survives errors.Is while the message stays
// specific.
var (
	// ErrConfig marks invalid or missing configuration. Fatal at startup.
	ErrConfig = errors.New("configuration error")

	// ErrSecurity marks an authentication mismatch or missing token.
	// The connection is closed with no reply; a rejection counter is
	// incremented.
	ErrSecurity = errors.New("security error")

	// ErrIPC marks a connection failure, timeout, or malformed message.
	// Callers see this converted to a nil result; it is never fatal.
	ErrIPC = errors.New("ipc error")

	// ErrLLM marks any LLM communication failure: connection refused,
	// timeout, non-200 response, empty choices, or blocked output.
	ErrLLM = errors.New("llm error")

	// ErrHandler marks a panic or error raised inside an action handler.
	// Always converted into a failed ActionOutcome; never aborts a tick.
	ErrHandler = errors.New("handler error")

	// ErrPersistence marks a store write failure. Migrations failing at
	// startup are fatal; all other persistence errors are reported to
	// their caller and logged.
	ErrPersistence = errors.New("persistence error")

	// ErrRouting marks an unknown target, rejected message type, or full
	// queue. Surfaced to the source as a non-success RoutedMessage.
	ErrRouting = errors.New("routing error")
)

package pump

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected      ConnectionState = "not_connected"
	AlreadyConnected  ConnectionState = "already_connected"
	ConnectInProgress ConnectionState = "connect_in_progress"
	NotInitialized    ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected      = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected  = &ConnectionError{State: AlreadyConnected}
	ErrConnectInProgress = &ConnectionError{State: ConnectInProgress}
	ErrNotInitialized    = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	// ErrTimeout reports that no notification arrived within the per-command
	// wait. It is a transient condition, not a connection fault - callers may
	// proceed without the field the command would have populated.
	ErrTimeout = errors.New("timeout")

	// ErrNoWriteCharacteristic reports a command send attempted before a
	// write characteristic was selected. This is a precondition fault and is
	// never retried.
	ErrNoWriteCharacteristic = errors.New("no write characteristic selected")

	// ErrRetriesExhausted marks a refresh cycle that failed on every attempt.
	ErrRetriesExhausted = errors.New("all retry attempts exhausted")
)

// Op identifies the sub-operation an external-boundary failure occurred in,
// so callers can distinguish total device unavailability from partial-data
// success.
type Op string

const (
	OpConnect  Op = "connect"
	OpDiscover Op = "discover"
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpNotify   Op = "notify"
	OpInfo     Op = "info-sequence"
	OpRefresh  Op = "refresh"
)

// OpError wraps a failure with the sub-operation it occurred in.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op Op, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// NormalizeError maps transport-stack error strings onto the connection
// sentinels so callers can match with errors.Is regardless of which layer
// produced the failure.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

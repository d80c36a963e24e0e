package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/grundble/internal/pump"
	"github.com/srg/grundble/scanner"
)

// FormatUserError turns internal errors into messages suitable for a user
// who does not know the package structure.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, scanner.ErrDeviceNotFound):
		return fmt.Sprintf("%v. Make sure the pump is powered and in range, then try 'grundble scan'.", err)
	case pump.IsConnectionState(err, pump.NotConnected):
		return "not connected to the pump"
	case errors.Is(err, pump.ErrRetriesExhausted):
		return fmt.Sprintf("could not reach the pump: %v", err)
	case errors.Is(err, pump.ErrTimeout):
		return "the pump did not answer in time"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return err.Error()
	}
}

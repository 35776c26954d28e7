// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "time"

type (
	// Error represents a structured monitoring error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		// Identifies the unit of work that failed, where applicable.
		SectorID string
		DeviceID string
		Metric   string

		// Identifies the external collaborator that failed, where applicable.
		Service string

		PropertyName  string
		PropertyValue any

		TimeoutName  string
		TimeoutValue time.Duration
	}

	// Kind defines the type of error being thrown.
	Kind int
)

// The following are the defined error kinds. All of them are recoverable and
// local to the failing unit of work; none are fatal to the process.
const (
	// DiscoveryUnavailable indicates the service registry could not be
	// reached. The last cached endpoint, if any, should be used instead.
	DiscoveryUnavailable Kind = iota

	// DataUnavailable indicates the readings source returned no data or an
	// error for a device. The device contributes no anomalies this cycle.
	DataUnavailable

	// InsufficientHistory indicates a reading window smaller than the
	// detector's minimum. Statistical detection is skipped for the cycle.
	InsufficientHistory

	// ActuationFailure indicates a publish to the actuation channel failed.
	// No valve state is assumed changed.
	ActuationFailure

	// ValidationError indicates a malformed inbound signal, rejected before
	// any side effects.
	ValidationError

	// StateUnknown indicates the current valve state could not be determined.
	// Decisions must abort rather than act on unknown state.
	StateUnknown

	// ConfigurationInvalid indicates invalid service configuration.
	ConfigurationInvalid

	// Timeout indicates an external call exceeded its bounded timeout.
	Timeout

	// Cancellation indicates the operation was cancelled by its context.
	Cancellation

	// InternalError indicates a defect surfaced by the core itself, such as
	// a non-positive propagation speed from inconsistent device clocks.
	InternalError

	// UnknownError indicates an unrecognized failure from a collaborator.
	UnknownError
)

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case DiscoveryUnavailable:
		return "discovery unavailable"
	case DataUnavailable:
		return "data unavailable"
	case InsufficientHistory:
		return "insufficient history"
	case ActuationFailure:
		return "actuation failure"
	case ValidationError:
		return "validation error"
	case StateUnknown:
		return "state unknown"
	case ConfigurationInvalid:
		return "configuration invalid"
	case Timeout:
		return "timeout"
	case Cancellation:
		return "cancellation"
	case InternalError:
		return "internal error"
	default:
		return "unknown error"
	}
}

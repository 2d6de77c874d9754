package remote

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes backend failures. The orchestrator's queue-vs-
// surface decision hangs entirely on this classification.
type ErrorKind string

const (
	// KindConnectivity is a transport-level failure: the request never
	// reached the backend or no usable response came back. Always
	// recoverable by falling back to local queuing.
	KindConnectivity ErrorKind = "connectivity"

	// KindValidation is a rejected request (4xx): the backend saw the data
	// and refused it. Retrying the same data would fail again, so these
	// are surfaced and never queued.
	KindValidation ErrorKind = "validation"

	// KindRemote is a backend-side failure (5xx) or an undecodable
	// response. Surfaced like validation failures; not safely retryable
	// without operator judgment.
	KindRemote ErrorKind = "remote"
)

// Error is a classified backend failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a connectivity failure, directly
// or anywhere in its chain.
func IsConnectivity(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindConnectivity
}

// IsValidation reports whether err is a remote validation/logic rejection.
func IsValidation(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindValidation
}

package scan

import (
	"errors"
	"fmt"
)

// Outcome classifies the result of a session operation.
type Outcome uint8

const (
	Ok Outcome = iota
	// AlreadyFailed is returned by every operation once the session has
	// latched a failure. No planes are touched and no I/O is performed.
	AlreadyFailed
	// VerificationMismatch means an observed TDO byte disagreed with the
	// expectation under mask.
	VerificationMismatch
	// ConnectivityError means the link to the remote agent failed.
	ConnectivityError
)

var outcomeNames = map[Outcome]string{
	Ok:                   "ok",
	AlreadyFailed:        "already-failed",
	VerificationMismatch: "verification-mismatch",
	ConnectivityError:    "connectivity-error",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

var (
	// ErrAlreadyFailed wraps the latched failure on every short-circuited call.
	ErrAlreadyFailed = errors.New("scan: session already failed")
	// ErrVerification is wrapped by *MismatchError.
	ErrVerification = errors.New("scan: tdo verification failed")
	// ErrConnectivity is wrapped by link read/write failures.
	ErrConnectivity = errors.New("scan: connectivity error")
)

// MismatchError carries the first byte that failed verification.
type MismatchError struct {
	Index    int
	Observed byte
	Mask     byte
	Expected byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("scan: tdo check failed: i %d, received 0x%02x, mask 0x%02x, should 0x%02x",
		e.Index, e.Observed, e.Mask, e.Expected)
}

func (e *MismatchError) Unwrap() error {
	return ErrVerification
}

// Result is the outcome of a session operation. Err is nil only for Ok.
type Result struct {
	Outcome Outcome
	Err     error
}

var okResult = Result{Outcome: Ok}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Outcome == Ok
}

func (r Result) String() string {
	if r.Err == nil {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Err.Error()
}

func connectivity(err error) Result {
	if !errors.Is(err, ErrConnectivity) {
		err = fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return Result{Outcome: ConnectivityError, Err: err}
}

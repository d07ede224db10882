package sheets

import (
	"errors"
	"fmt"
)

// Kind classifies a mirror write failure
type Kind int

const (
	// KindAuth covers bad or expired credentials
	KindAuth Kind = iota + 1
	// KindConfig covers missing spreadsheets or tabs and insufficient row ranges
	KindConfig
	// KindTransient covers network, timeout and quota failures
	KindTransient
)

// Sentinels matched with errors.Is against an *Error
var (
	ErrAuth      = errors.New("sheets: authentication failure")
	ErrConfig    = errors.New("sheets: configuration error")
	ErrTransient = errors.New("sheets: transient failure")
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindConfig:
		return ErrConfig
	case KindTransient:
		return ErrTransient
	default:
		return nil
	}
}

// Error is a classified mirror failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sheets %s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("sheets %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func configErrorf(op, format string, args ...any) *Error {
	return newError(KindConfig, op, fmt.Errorf(format, args...))
}

// KindOf extracts the failure kind. Unclassified errors are reported as transient.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// IsRetryable reports whether a failure may be retried
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

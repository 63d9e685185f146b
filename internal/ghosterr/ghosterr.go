// Package ghosterr defines the closed error taxonomy shared by every Ghost
// component, so callers can branch with errors.Is instead of string
// matching on error text.
package ghosterr

import (
	"errors"
	"fmt"
)

// Kind tags an error with one of the taxonomy entries from the error
// handling design. Kind values are sentinel errors themselves, so they can
// be wrapped directly with fmt.Errorf("...: %w", kind) or compared with
// errors.Is.
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

var (
	StorageConnectionFailed = &Kind{"storage connection failed"}
	StorageOperationFailed  = &Kind{"storage operation failed"}
	CacheMiss               = &Kind{"cache miss"}
	UnauthorizedAccess      = &Kind{"unauthorized access"}
	InsufficientPermissions = &Kind{"insufficient permissions"}
	ProcessStartFailed      = &Kind{"process start failed"}
	ProcessTerminated       = &Kind{"process terminated"}
	ConfigurationError      = &Kind{"configuration error"}
	ValidationError         = &Kind{"validation error"}
	InvalidOperation        = &Kind{"invalid operation"}
	ProcessError            = &Kind{"process error"}
	NotImplemented          = &Kind{"not implemented"}
	Unknown                 = &Kind{"unknown error"}
)

// Wrap produces an error reporting kind as its class and msg as the detail,
// optionally wrapping a lower-level cause.
func Wrap(kind *Kind, msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, cause)
}

// Is reports whether err (or any error it wraps) is classified as kind.
func Is(err error, kind *Kind) bool {
	return errors.Is(err, kind)
}

// Transient reports whether kind is one of the error classes that the
// Resilient data decorator and the Connection queue reader are permitted
// to retry automatically.
func Transient(kind *Kind) bool {
	return kind == StorageConnectionFailed
}

// Package errs defines the error-code taxonomy shared by every internal
// package and re-exported by the lsm package's public API.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the handle-API error categories.
type Code int

const (
	OK Code = iota
	ErrGeneric
	Busy
	NoMem
	ReadOnly
	IOErr
	Corrupt
	Full
	CantOpen
	Protocol
	Misuse
	Mismatch
	IOErrNoEnt
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrGeneric:
		return "ERROR"
	case Busy:
		return "BUSY"
	case NoMem:
		return "NOMEM"
	case ReadOnly:
		return "READONLY"
	case IOErr:
		return "IOERR"
	case Corrupt:
		return "CORRUPT"
	case Full:
		return "FULL"
	case CantOpen:
		return "CANTOPEN"
	case Protocol:
		return "PROTOCOL"
	case Misuse:
		return "MISUSE"
	case Mismatch:
		return "MISMATCH"
	case IOErrNoEnt:
		return "IOERR_NOENT"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Code with a causal chain. It is the concrete type behind
// every fallible operation in this module; call sites test the code with
// errors.As (stdlib) or the CodeOf helper below.
type Error struct {
	code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the error category carried by e.
func (e *Error) Code() Code { return e.code }

// New builds an Error of the given code, annotating msg with a stack
// trace via pkg/errors at the fallible call site.
func New(code Code, msg string) *Error {
	return &Error{code: code, cause: errors.New(msg)}
}

// Wrap attaches code to an existing error without discarding its chain.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: code, cause: errors.Wrap(err, msg)}
}

// CodeOf extracts the Code from err, defaulting to ErrGeneric for errors
// that did not originate in this module (e.g. raw I/O errors that a
// caller hasn't yet classified).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ErrGeneric
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool { return CodeOf(err) == code }

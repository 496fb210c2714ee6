// Package pduerr defines the closed set of error codes returned by every
// public operation in the pduendpoint core. No component invents its own
// error type; everything maps onto one of these codes.
package pduerr

import "fmt"

// Code identifies one of the fixed error conditions the core can report.
type Code uint8

const (
	Ok Code = iota
	InvalidArgument
	OutOfMemory
	IoError
	NoSpace
	Busy
	Timeout
	NoEntry
	FileNotFound
	InvalidJSON
	InvalidConfig
	NotRunning
	Unsupported
	InvalidPduKey
)

// codeNames maps codes to human-readable identifiers for logging.
var codeNames = map[Code]string{
	Ok:              "OK",
	InvalidArgument: "INVALID_ARGUMENT",
	OutOfMemory:     "OUT_OF_MEMORY",
	IoError:         "IO_ERROR",
	NoSpace:         "NO_SPACE",
	Busy:            "BUSY",
	Timeout:         "TIMEOUT",
	NoEntry:         "NO_ENTRY",
	FileNotFound:    "FILE_NOT_FOUND",
	InvalidJSON:     "INVALID_JSON",
	InvalidConfig:   "INVALID_CONFIG",
	NotRunning:      "NOT_RUNNING",
	Unsupported:     "UNSUPPORTED",
	InvalidPduKey:   "INVALID_PDU_KEY",
}

// String returns the identifier used in logging and error messages.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", uint8(c))
}

// Error wraps a Code with an optional message and cause, and is the only
// error type that escapes the pduendpoint core.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New returns an *Error carrying code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error carrying code, a message, and an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Of extracts the Code carried by err: nil reports Ok, an *Error reports its
// own Code, and any other error reports IoError, so that callers never have
// to special-case foreign errors. Only err itself is checked: an *Error
// wrapped inside another error also reports IoError.
func Of(err error) Code {
	if err == nil {
		return Ok
	}
	var pe *Error
	if as, ok := err.(*Error); ok {
		pe = as
		return pe.Code
	}
	return IoError
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return Of(err) == code
}

package xmodem

import (
	"errors"
	"fmt"
)

// Error represents an XMODEM receive error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Err is the underlying cause (if applicable)
	Err error
}

// ErrorType categorizes XMODEM errors
type ErrorType int

const (
	// ErrHandshakeTimeout indicates the sender never answered the 'C' poll
	ErrHandshakeTimeout ErrorType = iota

	// ErrTooManyErrors indicates the noise ceiling was exceeded
	ErrTooManyErrors

	// ErrSinkWrite indicates the payload consumer rejected a block
	ErrSinkWrite

	// ErrChannel indicates the underlying channel failed
	ErrChannel

	// ErrInvalidPacket indicates a block failed validation
	ErrInvalidPacket
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xmodem %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("xmodem %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (t ErrorType) String() string {
	switch t {
	case ErrHandshakeTimeout:
		return "handshake timeout"
	case ErrTooManyErrors:
		return "too many errors"
	case ErrSinkWrite:
		return "sink write error"
	case ErrChannel:
		return "channel error"
	case ErrInvalidPacket:
		return "invalid packet"
	default:
		return "unknown error"
	}
}

// NewError creates a new XMODEM error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WrapError creates a new XMODEM error around a cause
func WrapError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsHandshakeTimeout checks if the sender never responded
func IsHandshakeTimeout(err error) bool {
	return hasType(err, ErrHandshakeTimeout)
}

// IsTooManyErrors checks if the error ceiling was exceeded
func IsTooManyErrors(err error) bool {
	return hasType(err, ErrTooManyErrors)
}

// IsSinkWrite checks if the sink failed to accept a block
func IsSinkWrite(err error) bool {
	return hasType(err, ErrSinkWrite)
}

// IsChannel checks if the channel itself failed
func IsChannel(err error) bool {
	return hasType(err, ErrChannel)
}

// IsInvalidPacket checks if a block was rejected by validation
func IsInvalidPacket(err error) bool {
	return hasType(err, ErrInvalidPacket)
}

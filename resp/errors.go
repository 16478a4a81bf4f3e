package resp

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for RESP operations.
// Each type tells the caller whether the connection can still be used after
// the error (see ShouldCloseConnection).

var (
	// ErrPeerDisconnected is wrapped by ConnectionError when the stream ends
	// before a complete reply was read.
	ErrPeerDisconnected = errors.New("peer disconnected unexpectedly")

	// ErrNil is returned by non-optional accessors when the reply is a null
	// bulk string or a null array.
	ErrNil = errors.New("resp: nil reply")
)

// ConnectionError wraps I/O failures on the underlying stream.
//
// Connection handling: the stream is broken, CLOSE the connection.
type ConnectionError struct {
	Op  string // read or write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("resp: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the stream is already unusable
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ProtocolError reports bytes that do not follow the RESP grammar:
// an unknown reply tag, a missing CRLF, or an invalid length.
//
// Connection handling: the read position inside the stream is unknown, CLOSE the connection.
type ProtocolError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "resp: protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "resp: protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - protocol errors corrupt the stream state
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// ServerError is an error reply ("-ERR ...") sent by the server.
// Error returns the message exactly as the server sent it.
//
// Connection handling: the reply was fully consumed, the connection can be REUSED.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Prefix returns the error code, the first word of the message
// (ERR, WRONGTYPE, NOSCRIPT...).
func (e *ServerError) Prefix() string {
	prefix, _, _ := strings.Cut(e.Message, " ")
	return prefix
}

// ShouldCloseConnection returns false - the server answered with a well-formed reply
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// CoercionError is returned by a Reply accessor when the reply cannot be
// converted to the requested type.
//
// Connection handling: the reply was fully consumed, the connection can be REUSED.
type CoercionError struct {
	Kind    Kind   // Kind of the reply being converted
	Target  string // Requested type: "int64", "bool", ...
	Message string
	Err     error // Underlying parse error, if any
}

func (e *CoercionError) Error() string {
	msg := fmt.Sprintf("resp: cannot convert %s reply to %s", e.Kind, e.Target)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - conversion happens after the reply was read
func (e *CoercionError) ShouldCloseConnection() bool {
	return false
}

// ArgumentError is returned when a command argument has a type that cannot
// be encoded. It is detected before anything is written.
//
// Connection handling: nothing was sent, the connection can be REUSED.
type ArgumentError struct {
	Index int // Position in the argument list (0 is the first argument after the command name)
	Value any
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("resp: unsupported argument type %T at position %d", e.Value, e.Index)
}

// ShouldCloseConnection returns false - the command was rejected before writing
func (e *ArgumentError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is implemented by all error types of this package.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection in an
// unusable state.
//
// Returns false for nil, ErrNil, ServerError, CoercionError and ArgumentError.
// Unknown errors are treated conservatively and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil || errors.Is(err, ErrNil) {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}

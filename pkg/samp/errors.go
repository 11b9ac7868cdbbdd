package samp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Every error returned by Client and Exchange matches exactly one
// of them with errors.Is.
var (
	// ErrValidation reports a bad host, port or timeout. No network I/O was attempted.
	ErrValidation = errors.New("invalid request")

	// ErrResolve reports that the host name could not be resolved to an IPv4 address.
	ErrResolve = errors.New("invalid hostname")

	// ErrTransport reports a socket or send failure, including an unreachable host.
	ErrTransport = errors.New("transport failure")

	// ErrTimeout reports that no reply arrived within the configured window.
	ErrTimeout = errors.New("request timeout")

	// ErrProtocol reports a reply shorter than the header or a payload that ends early.
	ErrProtocol = errors.New("protocol violation")
)

// ErrShortDatagram is returned when a reply is shorter than HeaderSize.
var ErrShortDatagram = fmt.Errorf("%w: datagram shorter than %d-byte header", ErrProtocol, HeaderSize)

// QueryError describes a failed query stage.
type QueryError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Err is the underlying cause.
	Err error

	// Endpoint is the target, empty for validation failures.
	Endpoint Endpoint

	// Elapsed is the time between sending the request and the failure.
	// Zero when nothing was sent.
	Elapsed time.Duration

	// Op is the query stage that failed, zero for validation and resolution.
	Op Opcode
}

func (e *QueryError) Error() string {
	var b strings.Builder
	if e.Endpoint.Address != "" {
		b.WriteString(e.Endpoint.String())
		b.WriteByte(' ')
	}
	if e.Op != 0 {
		b.WriteString(e.Op.String())
		b.WriteString(": ")
	}

	switch {
	case e.Err == nil:
		b.WriteString(e.Kind.Error())
	case errors.Is(e.Err, e.Kind):
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// DecodeError is returned when a read would run past the end of a datagram.
type DecodeError struct {
	// Field names the value being read.
	Field string

	// Offset is the position of the failed read from the start of the datagram,
	// echoed header included.
	Offset int

	// Need is the number of bytes the read required.
	Need int

	// Size is the total datagram length.
	Size int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s needs %d bytes at offset %d, datagram has %d",
		ErrProtocol, e.Field, e.Need, e.Offset, e.Size)
}

// Unwrap makes every DecodeError an ErrProtocol.
func (e *DecodeError) Unwrap() error {
	return ErrProtocol
}

// kindOf returns the sentinel matched by err, or ErrTransport for unknown failures.
func kindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrResolve, ErrTimeout, ErrProtocol, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return ErrTransport
}

// Kind returns the name of the error kind matched by err, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrResolve):
		return "resolve"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "transport"
	}
}

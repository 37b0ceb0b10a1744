// Package errors defines the error taxonomy of the client. Transport and
// codec errors on a live connection are diagnostics; handshake and heartbeat
// errors are fatal and funnel through the socket's single teardown path.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrHeartbeatExpired reports that no ping arrived within
	// pingInterval + pingTimeout of the previous one.
	ErrHeartbeatExpired = errors.New("ping timeout")
)

// CodecKind classifies a packet decode failure.
type CodecKind int

const (
	// InvalidType means the leading type byte was not recognized.
	InvalidType CodecKind = iota
	// Truncated means a payload length prefix exceeded the remaining bytes.
	Truncated
	// Encoding means base64 data in a binary-flagged frame was invalid.
	Encoding
)

func (k CodecKind) String() string {
	switch k {
	case InvalidType:
		return "invalid type"
	case Truncated:
		return "truncated"
	case Encoding:
		return "encoding"
	}
	return "unknown"
}

// CodecError is a per-packet decode failure. It closes the current packet,
// not the connection, unless it occurs during the handshake.
type CodecError struct {
	Kind  CodecKind
	cause error
}

func NewCodecError(kind CodecKind, cause error) *CodecError {
	return &CodecError{Kind: kind, cause: cause}
}

func (e *CodecError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("parser error (%s): %s", e.Kind, e.cause.Error())
	}
	return fmt.Sprintf("parser error (%s)", e.Kind)
}

func (e *CodecError) Unwrap() error {
	return e.cause
}

// TransportError is a network-level failure reported by a transport.
type TransportError struct {
	Msg         string
	Transport   string
	Description error
}

func NewTransportError(msg string, transport string, description error) *TransportError {
	return &TransportError{Msg: msg, Transport: transport, Description: description}
}

func (e *TransportError) Error() string {
	if e.Description != nil {
		return fmt.Sprintf("transport error (%s): %s: %s", e.Transport, e.Msg, e.Description.Error())
	}
	return fmt.Sprintf("transport error (%s): %s", e.Transport, e.Msg)
}

func (e *TransportError) Unwrap() error {
	return e.Description
}

// HandshakeError is a malformed or missing open packet. Always fatal.
type HandshakeError struct {
	Msg   string
	cause error
}

func NewHandshakeError(msg string, cause error) *HandshakeError {
	return &HandshakeError{Msg: msg, cause: cause}
}

func (e *HandshakeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("handshake error: %s: %s", e.Msg, e.cause.Error())
	}
	return "handshake error: " + e.Msg
}

func (e *HandshakeError) Unwrap() error {
	return e.cause
}

// UpgradeError reports a failed transport upgrade probe. Never fatal: the
// socket silently stays on its current transport.
type UpgradeError struct {
	Transport string
	cause     error
}

func NewUpgradeError(transport string, cause error) *UpgradeError {
	return &UpgradeError{Transport: transport, cause: cause}
}

func (e *UpgradeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("probe error (%s): %s", e.Transport, e.cause.Error())
	}
	return fmt.Sprintf("probe error (%s)", e.Transport)
}

func (e *UpgradeError) Unwrap() error {
	return e.cause
}

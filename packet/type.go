package packet

import (
	"io"
)

type Type string

const (
	OPEN    Type = "open"
	CLOSE   Type = "close"
	PING    Type = "ping"
	PONG    Type = "pong"
	MESSAGE Type = "message"
	UPGRADE Type = "upgrade"
	NOOP    Type = "noop"
	ERROR   Type = "error"
)

type Options struct {
	Compress bool `json:"compress"`
}

// Packet is a single engine.io packet. Data is nil for bare control
// packets. A *types.StringBuffer or *strings.Reader payload is sent as
// text; every other reader is treated as binary.
type Packet struct {
	Type    Type      `json:"type"`
	Data    io.Reader `json:"data,omitempty"`
	Options *Options  `json:"options,omitempty"`
}

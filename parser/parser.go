// Package parser implements the engine.io packet codec: one leading type
// character per packet, base64 with a `b` marker for binary payloads on
// text-only transports, and decimal-length-prefixed framing for batched
// polling payloads.
package parser

import (
	"io"
	"strings"

	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/types"
)

type Parser interface {
	Protocol() int
	// EncodePacket encodes a single packet. When supportsBinary is false,
	// binary payloads are transposed into a base64 string.
	EncodePacket(*packet.Packet, bool) (types.BufferInterface, error)
	// DecodePacket decodes a single packet; failures are *errors.CodecError.
	DecodePacket(types.BufferInterface) (*packet.Packet, error)
	// EncodePayload frames a batch of packets for a polling round trip.
	EncodePayload([]*packet.Packet) (types.BufferInterface, error)
	// DecodePayload unframes a polling payload. Packets decoded before an
	// error occurred are returned alongside it.
	DecodePayload(types.BufferInterface) ([]*packet.Packet, error)
}

// Packet types.
var (
	PACKET_TYPES map[packet.Type]byte = map[packet.Type]byte{
		packet.OPEN:    '0',
		packet.CLOSE:   '1',
		packet.PING:    '2',
		packet.PONG:    '3',
		packet.MESSAGE: '4',
		packet.UPGRADE: '5',
		packet.NOOP:    '6',
	}

	PACKET_TYPES_REVERSE map[byte]packet.Type = map[byte]packet.Type{
		'0': packet.OPEN,
		'1': packet.CLOSE,
		'2': packet.PING,
		'3': packet.PONG,
		'4': packet.MESSAGE,
		'5': packet.UPGRADE,
		'6': packet.NOOP,
	}

	// Premade error packet.
	ERROR_PACKET = &packet.Packet{Type: packet.ERROR, Data: types.NewStringBufferString(`parser error`)}
)

// IsText reports whether the packet payload travels as UTF-8 text.
func IsText(data io.Reader) bool {
	switch data.(type) {
	case *types.StringBuffer, *strings.Reader, nil:
		return true
	}
	return false
}

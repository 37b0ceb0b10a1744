package parser

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"github.com/edgewire/engine.io-client/errors"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/types"
	"github.com/edgewire/engine.io-client/utils"
)

type codec struct{}

var (
	defaultCodec Parser = &codec{}
)

func Codec() Parser {
	return defaultCodec
}

func (*codec) Protocol() int {
	return 4
}

func (c *codec) EncodePacket(data *packet.Packet, supportsBinary bool) (types.BufferInterface, error) {
	if data == nil {
		return nil, errors.NewCodecError(errors.InvalidType, fmt.Errorf("packet must not be nil"))
	}

	if closer, ok := data.Data.(io.Closer); ok {
		defer closer.Close()
	}

	if IsText(data.Data) {
		encode := types.NewStringBuffer(nil)
		if err := encode.WriteByte(PACKET_TYPES[data.Type]); err != nil {
			return nil, err
		}
		if data.Data != nil {
			if _, err := io.Copy(encode, data.Data); err != nil {
				return nil, err
			}
		}
		return encode, nil
	}

	if !supportsBinary {
		// binary data on a text-only transport rides as a base64 string
		encode := types.NewStringBuffer(nil)
		if _, err := encode.Write([]byte{'b', PACKET_TYPES[data.Type]}); err != nil {
			return nil, err
		}
		b64 := base64.NewEncoder(base64.StdEncoding, encode)
		if _, err := io.Copy(b64, data.Data); err != nil {
			return nil, err
		}
		if err := b64.Close(); err != nil {
			return nil, err
		}
		return encode, nil
	}

	encode := types.NewBytesBuffer(nil)
	if err := encode.WriteByte(PACKET_TYPES[data.Type] - '0'); err != nil {
		return nil, err
	}
	if _, err := io.Copy(encode, data.Data); err != nil {
		return nil, err
	}
	return encode, nil
}

func (c *codec) DecodePacket(data types.BufferInterface) (*packet.Packet, error) {
	if data == nil {
		return ERROR_PACKET, errors.NewCodecError(errors.InvalidType, fmt.Errorf("data must not be nil"))
	}

	msgType, err := data.ReadByte()
	if err != nil {
		return ERROR_PACKET, errors.NewCodecError(errors.Truncated, err)
	}

	switch data.(type) {
	case *types.StringBuffer:
		if msgType == 'b' {
			// base64-marked binary packet
			msgType, err = data.ReadByte()
			if err != nil {
				return ERROR_PACKET, errors.NewCodecError(errors.Truncated, err)
			}
			packetType, ok := PACKET_TYPES_REVERSE[msgType]
			if !ok {
				return ERROR_PACKET, errors.NewCodecError(errors.InvalidType, fmt.Errorf("unknown data type [%c]", msgType))
			}
			decode := types.NewBytesBuffer(nil)
			if _, err := decode.ReadFrom(base64.NewDecoder(base64.StdEncoding, data)); err != nil {
				return ERROR_PACKET, errors.NewCodecError(errors.Encoding, err)
			}
			return &packet.Packet{Type: packetType, Data: decode}, nil
		}
		packetType, ok := PACKET_TYPES_REVERSE[msgType]
		if !ok {
			return ERROR_PACKET, errors.NewCodecError(errors.InvalidType, fmt.Errorf("unknown data type [%c]", msgType))
		}
		decode := types.NewStringBuffer(nil)
		if _, err := decode.ReadFrom(data); err != nil {
			return ERROR_PACKET, errors.NewCodecError(errors.Truncated, err)
		}
		return &packet.Packet{Type: packetType, Data: decode}, nil
	}

	// framed binary transport, raw leading byte
	packetType, ok := PACKET_TYPES_REVERSE[msgType+'0']
	if !ok {
		return ERROR_PACKET, errors.NewCodecError(errors.InvalidType, fmt.Errorf("unknown data type [%c]", msgType+'0'))
	}
	decode := types.NewBytesBuffer(nil)
	if _, err := io.Copy(decode, data); err != nil {
		return ERROR_PACKET, errors.NewCodecError(errors.Truncated, err)
	}
	return &packet.Packet{Type: packetType, Data: decode}, nil
}

// EncodePayload frames each packet as `<length>:<packet>` and concatenates
// the frames in send order. Lengths count UTF-16 code units. Binary packets
// are base64-encoded first so the payload stays text-safe.
func (c *codec) EncodePayload(packets []*packet.Packet) (types.BufferInterface, error) {
	enPayload := types.NewStringBuffer(nil)

	if len(packets) == 0 {
		if _, err := enPayload.WriteString(`0:`); err != nil {
			return nil, err
		}
		return enPayload, nil
	}

	for _, data := range packets {
		buf, err := c.EncodePacket(data, false)
		if err != nil {
			return nil, err
		}
		if _, err := enPayload.WriteString(strconv.Itoa(utils.Utf16Count(buf.Bytes())) + ":" + buf.String()); err != nil {
			return nil, err
		}
	}

	return enPayload, nil
}

func (c *codec) DecodePayload(data types.BufferInterface) (packets []*packet.Packet, _ error) {
	if data == nil {
		return nil, errors.NewCodecError(errors.Truncated, fmt.Errorf("data must not be nil"))
	}

	for data.Len() > 0 {
		length, err := data.ReadString(':')
		if err != nil {
			return packets, errors.NewCodecError(errors.Truncated, fmt.Errorf("missing length delimiter"))
		}
		packetLen, err := strconv.Atoi(length[:len(length)-1])
		if err != nil || packetLen < 0 {
			return packets, errors.NewCodecError(errors.Truncated, fmt.Errorf("invalid length prefix %q", length[:len(length)-1]))
		}

		msg := types.NewStringBuffer(nil)
		for i := 0; i < packetLen; {
			r, _, err := data.ReadRune()
			if err != nil {
				return packets, errors.NewCodecError(errors.Truncated, fmt.Errorf("length prefix %d exceeds remaining data", packetLen))
			}
			i += utils.Utf16Len(r)
			if _, err := msg.WriteRune(r); err != nil {
				return packets, err
			}
		}

		if msg.Len() > 0 {
			decoded, err := c.DecodePacket(msg)
			if err != nil {
				// a malformed frame closes the current packet, not the payload
				return packets, err
			}
			packets = append(packets, decoded)
		}
	}
	return packets, nil
}

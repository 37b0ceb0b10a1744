package engine

import (
	"encoding/json"
	"io"
	"time"

	"github.com/edgewire/engine.io-client/errors"
)

// HandshakeData is the descriptor carried by the open packet. Produced
// exactly once per session and immutable afterwards.
type HandshakeData struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"` // milliseconds
	PingTimeout  int64    `json:"pingTimeout"`  // milliseconds
	MaxPayload   int64    `json:"maxPayload"`
}

func parseHandshake(data io.Reader) (*HandshakeData, error) {
	if data == nil {
		return nil, errors.NewHandshakeError("open packet carried no payload", nil)
	}

	handshake := &HandshakeData{}
	if err := json.NewDecoder(data).Decode(handshake); err != nil {
		return nil, errors.NewHandshakeError("malformed open packet", err)
	}
	if handshake.Sid == "" {
		return nil, errors.NewHandshakeError("open packet carried no session id", nil)
	}
	return handshake, nil
}

func (h *HandshakeData) pingIntervalDuration() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

func (h *HandshakeData) pingTimeoutDuration() time.Duration {
	return time.Duration(h.PingTimeout) * time.Millisecond
}

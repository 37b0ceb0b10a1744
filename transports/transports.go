package transports

import (
	"net/url"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/types"
)

const (
	POLLING   string = "polling"
	WEBSOCKET string = "websocket"
)

type creator struct {
	New func(*url.URL, config.SocketOptionsInterface) Transport
	// transports this one may upgrade to
	UpgradesTo *types.Set[string]
}

var _transports map[string]*creator

func init() {
	_transports = map[string]*creator{
		POLLING: {
			New:        NewPolling,
			UpgradesTo: types.NewSet(WEBSOCKET),
		},

		WEBSOCKET: {
			New:        NewWebSocket,
			UpgradesTo: types.NewSet[string](),
		},
	}
}

func Transports() map[string]*creator {
	return _transports
}

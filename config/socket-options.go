package config

import (
	"net/http"
	"net/url"
	"time"

	"github.com/edgewire/engine.io-client/types"
)

type (
	SocketOptionsInterface interface {
		SetTransports(*types.Set[string])
		GetRawTransports() *types.Set[string]
		Transports() *types.Set[string]

		SetUpgrade(bool)
		GetRawUpgrade() *bool
		Upgrade() bool

		SetRememberUpgrade(bool)
		GetRawRememberUpgrade() *bool
		RememberUpgrade() bool

		SetPath(string)
		GetRawPath() *string
		Path() string

		SetQuery(url.Values)
		GetRawQuery() url.Values
		Query() url.Values

		SetExtraHeaders(http.Header)
		GetRawExtraHeaders() http.Header
		ExtraHeaders() http.Header

		SetRequestTimeout(time.Duration)
		GetRawRequestTimeout() *time.Duration
		RequestTimeout() time.Duration

		SetUpgradeTimeout(time.Duration)
		GetRawUpgradeTimeout() *time.Duration
		UpgradeTimeout() time.Duration

		SetCloseTimeout(time.Duration)
		GetRawCloseTimeout() *time.Duration
		CloseTimeout() time.Duration
	}

	SocketOptions struct {
		// the low-level transports the client is allowed to use, in
		// upgrade-preference order ("polling" first, "websocket" preferred)
		transports *types.Set[string]

		// whether the client should try to upgrade the transport
		upgrade *bool

		// whether a successful websocket session lets the next session
		// start directly on websocket
		rememberUpgrade *bool

		// path of the engine.io endpoint
		path *string

		// extra query parameters appended to every transport URI
		query url.Values

		// extra headers sent with every request and the websocket handshake
		extraHeaders http.Header

		// per-request timeout of the polling HTTP client
		requestTimeout *time.Duration

		// how long an uncompleted transport upgrade probe may take
		upgradeTimeout *time.Duration

		// grace period for draining buffered packets on Close
		closeTimeout *time.Duration
	}
)

func DefaultSocketOptions() *SocketOptions {
	return &SocketOptions{}
}

func (s *SocketOptions) Assign(data SocketOptionsInterface) SocketOptionsInterface {
	if data == nil {
		return s
	}

	if s.GetRawTransports() == nil {
		s.SetTransports(data.Transports())
	}
	if s.GetRawUpgrade() == nil {
		s.SetUpgrade(data.Upgrade())
	}
	if s.GetRawRememberUpgrade() == nil {
		s.SetRememberUpgrade(data.RememberUpgrade())
	}
	if s.GetRawPath() == nil {
		s.SetPath(data.Path())
	}
	if s.GetRawQuery() == nil {
		s.SetQuery(data.Query())
	}
	if s.GetRawExtraHeaders() == nil {
		s.SetExtraHeaders(data.ExtraHeaders())
	}
	if s.GetRawRequestTimeout() == nil {
		s.SetRequestTimeout(data.RequestTimeout())
	}
	if s.GetRawUpgradeTimeout() == nil {
		s.SetUpgradeTimeout(data.UpgradeTimeout())
	}
	if s.GetRawCloseTimeout() == nil {
		s.SetCloseTimeout(data.CloseTimeout())
	}

	return s
}

// the transports the client is allowed to use
// @default ["polling", "websocket"]
func (s *SocketOptions) SetTransports(transports *types.Set[string]) {
	s.transports = transports
}
func (s *SocketOptions) GetRawTransports() *types.Set[string] {
	return s.transports
}
func (s *SocketOptions) Transports() *types.Set[string] {
	if s.transports == nil {
		return types.NewSet("polling", "websocket")
	}
	return s.transports
}

// whether the client should try to upgrade the transport
// @default true
func (s *SocketOptions) SetUpgrade(upgrade bool) {
	s.upgrade = &upgrade
}
func (s *SocketOptions) GetRawUpgrade() *bool {
	return s.upgrade
}
func (s *SocketOptions) Upgrade() bool {
	if s.upgrade == nil {
		return true
	}
	return *s.upgrade
}

// whether a session that upgraded right away lets the next session start
// on websocket directly
// @default false
func (s *SocketOptions) SetRememberUpgrade(rememberUpgrade bool) {
	s.rememberUpgrade = &rememberUpgrade
}
func (s *SocketOptions) GetRawRememberUpgrade() *bool {
	return s.rememberUpgrade
}
func (s *SocketOptions) RememberUpgrade() bool {
	if s.rememberUpgrade == nil {
		return false
	}
	return *s.rememberUpgrade
}

// path of the engine.io endpoint
// @default "/engine.io"
func (s *SocketOptions) SetPath(path string) {
	s.path = &path
}
func (s *SocketOptions) GetRawPath() *string {
	return s.path
}
func (s *SocketOptions) Path() string {
	if s.path == nil {
		return "/engine.io"
	}
	return *s.path
}

// extra query parameters appended to every transport URI
func (s *SocketOptions) SetQuery(query url.Values) {
	s.query = query
}
func (s *SocketOptions) GetRawQuery() url.Values {
	return s.query
}
func (s *SocketOptions) Query() url.Values {
	return s.query
}

// extra headers sent with every polling request and the websocket handshake
func (s *SocketOptions) SetExtraHeaders(extraHeaders http.Header) {
	s.extraHeaders = extraHeaders
}
func (s *SocketOptions) GetRawExtraHeaders() http.Header {
	return s.extraHeaders
}
func (s *SocketOptions) ExtraHeaders() http.Header {
	return s.extraHeaders
}

// per-request timeout of the polling HTTP client; long polls idle up to
// the server's ping interval, so this must comfortably exceed it
// @default 35_000ms
func (s *SocketOptions) SetRequestTimeout(requestTimeout time.Duration) {
	s.requestTimeout = &requestTimeout
}
func (s *SocketOptions) GetRawRequestTimeout() *time.Duration {
	return s.requestTimeout
}
func (s *SocketOptions) RequestTimeout() time.Duration {
	if s.requestTimeout == nil {
		return 35_000 * time.Millisecond
	}
	return *s.requestTimeout
}

// how long an uncompleted transport upgrade probe may take before the
// candidate is discarded
// @default 10_000ms
func (s *SocketOptions) SetUpgradeTimeout(upgradeTimeout time.Duration) {
	s.upgradeTimeout = &upgradeTimeout
}
func (s *SocketOptions) GetRawUpgradeTimeout() *time.Duration {
	return s.upgradeTimeout
}
func (s *SocketOptions) UpgradeTimeout() time.Duration {
	if s.upgradeTimeout == nil {
		return 10_000 * time.Millisecond
	}
	return *s.upgradeTimeout
}

// grace period for draining buffered packets when closing
// @default 5_000ms
func (s *SocketOptions) SetCloseTimeout(closeTimeout time.Duration) {
	s.closeTimeout = &closeTimeout
}
func (s *SocketOptions) GetRawCloseTimeout() *time.Duration {
	return s.closeTimeout
}
func (s *SocketOptions) CloseTimeout() time.Duration {
	if s.closeTimeout == nil {
		return 5_000 * time.Millisecond
	}
	return *s.closeTimeout
}

package config

import (
	"math"
	"time"
)

type (
	ManagerOptionsInterface interface {
		SocketOptionsInterface

		SetReconnection(bool)
		GetRawReconnection() *bool
		Reconnection() bool

		SetReconnectionAttempts(float64)
		GetRawReconnectionAttempts() *float64
		ReconnectionAttempts() float64

		SetReconnectionDelay(time.Duration)
		GetRawReconnectionDelay() *time.Duration
		ReconnectionDelay() time.Duration

		SetReconnectionDelayMax(time.Duration)
		GetRawReconnectionDelayMax() *time.Duration
		ReconnectionDelayMax() time.Duration

		SetRandomizationFactor(float64)
		GetRawRandomizationFactor() *float64
		RandomizationFactor() float64

		SetTimeout(time.Duration)
		GetRawTimeout() *time.Duration
		Timeout() time.Duration
	}

	ManagerOptions struct {
		SocketOptions

		// whether to reconnect automatically after an unexpected close
		reconnection *bool

		// number of reconnection attempts before giving up
		reconnectionAttempts *float64

		// initial delay before reconnection (affected by the
		// randomization factor)
		reconnectionDelay *time.Duration

		// maximum delay between two reconnection attempts
		reconnectionDelayMax *time.Duration

		// jitter applied to the reconnection delay, in [0, 1)
		randomizationFactor *float64

		// connection timeout covering the whole handshake
		timeout *time.Duration
	}
)

func DefaultManagerOptions() *ManagerOptions {
	return &ManagerOptions{}
}

func (m *ManagerOptions) Assign(data ManagerOptionsInterface) ManagerOptionsInterface {
	if data == nil {
		return m
	}

	m.SocketOptions.Assign(data)

	if m.GetRawReconnection() == nil {
		m.SetReconnection(data.Reconnection())
	}
	if m.GetRawReconnectionAttempts() == nil {
		m.SetReconnectionAttempts(data.ReconnectionAttempts())
	}
	if m.GetRawReconnectionDelay() == nil {
		m.SetReconnectionDelay(data.ReconnectionDelay())
	}
	if m.GetRawReconnectionDelayMax() == nil {
		m.SetReconnectionDelayMax(data.ReconnectionDelayMax())
	}
	if m.GetRawRandomizationFactor() == nil {
		m.SetRandomizationFactor(data.RandomizationFactor())
	}
	if m.GetRawTimeout() == nil {
		m.SetTimeout(data.Timeout())
	}

	return m
}

// whether to reconnect automatically after an unexpected close
// @default true
func (m *ManagerOptions) SetReconnection(reconnection bool) {
	m.reconnection = &reconnection
}
func (m *ManagerOptions) GetRawReconnection() *bool {
	return m.reconnection
}
func (m *ManagerOptions) Reconnection() bool {
	if m.reconnection == nil {
		return true
	}
	return *m.reconnection
}

// number of reconnection attempts before giving up
// @default +Inf
func (m *ManagerOptions) SetReconnectionAttempts(reconnectionAttempts float64) {
	m.reconnectionAttempts = &reconnectionAttempts
}
func (m *ManagerOptions) GetRawReconnectionAttempts() *float64 {
	return m.reconnectionAttempts
}
func (m *ManagerOptions) ReconnectionAttempts() float64 {
	if m.reconnectionAttempts == nil {
		return math.Inf(1)
	}
	return *m.reconnectionAttempts
}

// initial delay before reconnection
// @default 1_000ms
func (m *ManagerOptions) SetReconnectionDelay(reconnectionDelay time.Duration) {
	m.reconnectionDelay = &reconnectionDelay
}
func (m *ManagerOptions) GetRawReconnectionDelay() *time.Duration {
	return m.reconnectionDelay
}
func (m *ManagerOptions) ReconnectionDelay() time.Duration {
	if m.reconnectionDelay == nil {
		return 1_000 * time.Millisecond
	}
	return *m.reconnectionDelay
}

// maximum delay between two reconnection attempts; each attempt roughly
// doubles the previous delay
// @default 5_000ms
func (m *ManagerOptions) SetReconnectionDelayMax(reconnectionDelayMax time.Duration) {
	m.reconnectionDelayMax = &reconnectionDelayMax
}
func (m *ManagerOptions) GetRawReconnectionDelayMax() *time.Duration {
	return m.reconnectionDelayMax
}
func (m *ManagerOptions) ReconnectionDelayMax() time.Duration {
	if m.reconnectionDelayMax == nil {
		return 5_000 * time.Millisecond
	}
	return *m.reconnectionDelayMax
}

// jitter applied to the reconnection delay, in [0, 1)
// @default 0.5
func (m *ManagerOptions) SetRandomizationFactor(randomizationFactor float64) {
	m.randomizationFactor = &randomizationFactor
}
func (m *ManagerOptions) GetRawRandomizationFactor() *float64 {
	return m.randomizationFactor
}
func (m *ManagerOptions) RandomizationFactor() float64 {
	if m.randomizationFactor == nil {
		return 0.5
	}
	return *m.randomizationFactor
}

// connection timeout covering the whole handshake; fatal when exceeded
// @default 20_000ms
func (m *ManagerOptions) SetTimeout(timeout time.Duration) {
	m.timeout = &timeout
}
func (m *ManagerOptions) GetRawTimeout() *time.Duration {
	return m.timeout
}
func (m *ManagerOptions) Timeout() time.Duration {
	if m.timeout == nil {
		return 20_000 * time.Millisecond
	}
	return *m.timeout
}

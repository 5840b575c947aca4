package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"analytics-sdk/internal/common/utils"
)

// Connectivity reports the host's network state.
type Connectivity interface {
	IsConnected() bool
	IsConnectedWifi() bool
}

// StaticConnectivity is a Connectivity whose state is set by the host.
type StaticConnectivity struct {
	connected atomic.Bool
	wifi      atomic.Bool
}

// NewStaticConnectivity creates a StaticConnectivity with the given state.
func NewStaticConnectivity(connected, wifi bool) *StaticConnectivity {
	c := &StaticConnectivity{}
	c.Set(connected, wifi)
	return c
}

// Set updates the reported state.
func (c *StaticConnectivity) Set(connected, wifi bool) {
	c.connected.Store(connected)
	c.wifi.Store(wifi)
}

// IsConnected implements Connectivity
func (c *StaticConnectivity) IsConnected() bool { return c.connected.Load() }

// IsConnectedWifi implements Connectivity
func (c *StaticConnectivity) IsConnectedWifi() bool { return c.connected.Load() && c.wifi.Load() }

// DialConnectivity probes reachability by opening a TCP connection to an
// address, caching the answer for a short time. Servers have no notion of
// wifi, so an unmetered link is assumed unless Metered is set.
type DialConnectivity struct {
	address string
	timeout time.Duration
	ttl     time.Duration
	clock   utils.Clock
	dial    func(ctx context.Context, network, address string) (net.Conn, error)

	// Metered makes IsConnectedWifi report false.
	Metered bool

	mu        sync.Mutex
	checkedAt time.Time
	connected bool
}

// NewDialConnectivity creates a probe against address (host:port).
func NewDialConnectivity(address string, timeout, ttl time.Duration) *DialConnectivity {
	dialer := &net.Dialer{Timeout: timeout}
	return &DialConnectivity{
		address: address,
		timeout: timeout,
		ttl:     ttl,
		clock:   utils.SystemClock,
		dial:    dialer.DialContext,
	}
}

// IsConnected implements Connectivity
func (c *DialConnectivity) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if !c.checkedAt.IsZero() && now.Sub(c.checkedAt) < c.ttl {
		return c.connected
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", c.address)
	c.connected = err == nil
	if conn != nil {
		_ = conn.Close()
	}
	c.checkedAt = now
	return c.connected
}

// IsConnectedWifi implements Connectivity
func (c *DialConnectivity) IsConnectedWifi() bool {
	return !c.Metered && c.IsConnected()
}

// Package gateway provides the clock and identifier sources injected into the use cases.
package gateway

import (
	"sync"
	"time"
)

// TimeGateway returns the current time.
type TimeGateway interface {
	Now() time.Time
}

// RealTimeGateway reads the system clock in UTC.
type RealTimeGateway struct{}

// NewRealTimeGateway creates a TimeGateway backed by the system clock.
func NewRealTimeGateway() TimeGateway {
	return RealTimeGateway{}
}

// Now returns the current UTC time.
func (RealTimeGateway) Now() time.Time {
	return time.Now().UTC()
}

// CustomTimeGateway returns a controlled time, for tests and replays.
type CustomTimeGateway struct {
	mu   sync.Mutex
	next time.Time
}

// NewCustomTimeGateway creates a TimeGateway frozen at now.
func NewCustomTimeGateway(now time.Time) *CustomTimeGateway {
	return &CustomTimeGateway{next: now}
}

// Now returns the frozen time.
func (g *CustomTimeGateway) Now() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.next
}

// SetNextDate changes the time returned by Now.
func (g *CustomTimeGateway) SetNextDate(next time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next = next
}

// Advance moves the frozen time forward by d.
func (g *CustomTimeGateway) Advance(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next = g.next.Add(d)
}

package mqtt

import (
	"sync"
	"time"
)

// KeepAliveTracker watches traffic on one connection against its
// negotiated keep-alive interval. The side that sent CONNECT pings when
// half the interval passes without outbound traffic; either side declares
// the peer dead after one and a half intervals of silence. An interval of
// zero disables the timer entirely.
type KeepAliveTracker struct {
	mu       sync.Mutex
	interval time.Duration
	lastSent time.Time
	lastRecv time.Time
	now      func() time.Time
}

// NewKeepAliveTracker creates a tracker for the given keep-alive interval
// in seconds.
func NewKeepAliveTracker(seconds uint16) *KeepAliveTracker {
	t := &KeepAliveTracker{
		interval: time.Duration(seconds) * time.Second,
		now:      time.Now,
	}
	start := t.now()
	t.lastSent = start
	t.lastRecv = start
	return t
}

// Interval returns the keep-alive interval. Zero means disabled.
func (t *KeepAliveTracker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval replaces the interval, for a server keep-alive returned in
// CONNACK that overrides the requested value.
func (t *KeepAliveTracker) SetInterval(seconds uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = time.Duration(seconds) * time.Second
}

// TouchSent records outbound traffic. Any control packet counts, not just
// PINGREQ.
func (t *KeepAliveTracker) TouchSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = t.now()
}

// TouchReceived records inbound traffic.
func (t *KeepAliveTracker) TouchReceived() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRecv = t.now()
}

// PingDue reports whether half the interval has passed since the last
// outbound packet and a PINGREQ should go out.
func (t *KeepAliveTracker) PingDue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interval == 0 {
		return false
	}
	return t.now().Sub(t.lastSent) >= t.interval/2
}

// Expired reports whether the peer has been silent for more than one and
// a half intervals.
func (t *KeepAliveTracker) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interval == 0 {
		return false
	}
	return t.now().Sub(t.lastRecv) > t.interval+t.interval/2
}

// Deadline returns the instant the peer will be considered dead absent
// further traffic, and false when the timer is disabled.
func (t *KeepAliveTracker) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interval == 0 {
		return time.Time{}, false
	}
	return t.lastRecv.Add(t.interval + t.interval/2), true
}

// CheckInterval returns a sensible period for a ticker driving PingDue
// and Expired checks, and false when the timer is disabled.
func (t *KeepAliveTracker) CheckInterval() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interval == 0 {
		return 0, false
	}
	period := t.interval / 4
	if period < time.Second {
		period = time.Second
	}
	return period, true
}

package mqtt

import (
	"errors"
	"sync"
)

var ErrQuotaExceeded = errors.New("mqtt: receive quota exceeded")

// FlowController enforces the receive-maximum window: the number of
// unacknowledged QoS > 0 PUBLISH packets allowed in flight toward the
// peer. On 3.1.1 connections the window is a local policy; on 5.0 it is
// the peer's advertised Receive Maximum.
type FlowController struct {
	mu             sync.Mutex
	receiveMaximum uint16
	inFlight       uint16
}

// NewFlowController creates a flow controller. A receiveMaximum of 0 means
// the protocol default of 65535.
func NewFlowController(receiveMaximum uint16) *FlowController {
	if receiveMaximum == 0 {
		receiveMaximum = 65535
	}
	return &FlowController{receiveMaximum: receiveMaximum}
}

// ReceiveMaximum returns the window size.
func (f *FlowController) ReceiveMaximum() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiveMaximum
}

// SetReceiveMaximum updates the window, typically after the peer's
// CONNECT or CONNACK properties arrive.
func (f *FlowController) SetReceiveMaximum(maximum uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if maximum == 0 {
		maximum = 65535
	}
	f.receiveMaximum = maximum
}

// Available returns the number of free in-flight slots.
func (f *FlowController) Available() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight >= f.receiveMaximum {
		return 0
	}
	return f.receiveMaximum - f.inFlight
}

// InFlight returns the current number of in-flight messages.
func (f *FlowController) InFlight() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Acquire takes one slot from the window. It returns ErrQuotaExceeded
// when the window is full; callers treat that as backpressure.
func (f *FlowController) Acquire() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight >= f.receiveMaximum {
		return ErrQuotaExceeded
	}
	f.inFlight++
	return nil
}

// TryAcquire takes one slot if one is free, reporting whether it did.
func (f *FlowController) TryAcquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight >= f.receiveMaximum {
		return false
	}
	f.inFlight++
	return true
}

// Release frees one slot after the flow completes. Extra releases are
// ignored so duplicate acknowledgements cannot corrupt the window.
func (f *FlowController) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
}

// Reset empties the window.
func (f *FlowController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = 0
}

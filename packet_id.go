package mqtt

import "sync"

const maxPacketID = 65535

// PacketIDManager allocates and releases packet identifiers (1-65535).
// Allocate always returns the lowest identifier not currently in use, so
// long-lived flows do not push new allocations toward the 16-bit wrap.
type PacketIDManager struct {
	mu   sync.Mutex
	used map[uint16]struct{}
}

// NewPacketIDManager creates a new packet ID manager with all identifiers
// free.
func NewPacketIDManager() *PacketIDManager {
	return &PacketIDManager{
		used: make(map[uint16]struct{}),
	}
}

// Allocate returns the lowest available packet ID. When every identifier
// is in flight it returns ErrPacketIDExhausted; callers treat that as
// backpressure, not a failure.
func (m *PacketIDManager) Allocate() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.used) >= maxPacketID {
		return 0, ErrPacketIDExhausted
	}

	for id := uint16(1); ; id++ {
		if _, ok := m.used[id]; !ok {
			m.used[id] = struct{}{}
			return id, nil
		}
		if id == maxPacketID {
			return 0, ErrPacketIDExhausted
		}
	}
}

// Claim marks a specific packet ID as in use, for flows resumed from a
// stored session that must keep their original identifiers. Claiming an
// already-used ID reports false.
func (m *PacketIDManager) Claim(id uint16) bool {
	if id == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.used[id]; ok {
		return false
	}
	m.used[id] = struct{}{}
	return true
}

// Release frees a packet ID for reuse. Releasing an ID that is not in use
// is a no-op, so duplicate acknowledgements are harmless.
func (m *PacketIDManager) Release(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, id)
}

// IsUsed returns true if the packet ID is currently in use.
func (m *PacketIDManager) IsUsed(id uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[id]
	return ok
}

// InUse returns the count of packet IDs currently in use.
func (m *PacketIDManager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.used)
}

// Reset frees every packet ID.
func (m *PacketIDManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used = make(map[uint16]struct{})
}

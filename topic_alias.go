package mqtt

import "sync"

// TopicAliasManager handles v5 topic aliases in one direction. Outbound,
// it assigns aliases for frequently used topics within the peer's
// advertised maximum; inbound, it resolves aliases back to topic names
// and rejects aliases outside the window it offered.
type TopicAliasManager struct {
	mu      sync.Mutex
	max     uint16
	byTopic map[string]uint16
	byAlias map[uint16]string
	next    uint16
}

// NewTopicAliasManager creates a manager with the given alias maximum. A
// maximum of 0 disables aliasing entirely.
func NewTopicAliasManager(max uint16) *TopicAliasManager {
	return &TopicAliasManager{
		max:     max,
		byTopic: make(map[string]uint16),
		byAlias: make(map[uint16]string),
		next:    1,
	}
}

// Max returns the alias maximum.
func (m *TopicAliasManager) Max() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

// Assign returns the alias for an outbound topic and whether the topic
// name still has to travel with it. The first use of a topic sends both
// name and alias; later uses send the alias alone. A full table or a
// disabled manager returns alias 0, meaning send the name only.
func (m *TopicAliasManager) Assign(topic string) (alias uint16, sendName bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.max == 0 {
		return 0, true
	}
	if alias, ok := m.byTopic[topic]; ok {
		return alias, false
	}
	if m.next > m.max {
		return 0, true
	}
	alias = m.next
	m.next++
	m.byTopic[topic] = alias
	m.byAlias[alias] = topic
	return alias, true
}

// Resolve maps an inbound PUBLISH's topic and alias to the effective
// topic name. A non-empty topic with an alias registers the pair; an
// empty topic looks the alias up. Alias 0 or above the offered maximum,
// or an unknown alias with no name, is a protocol violation.
func (m *TopicAliasManager) Resolve(topic string, alias uint16) (string, error) {
	if alias == 0 {
		if topic == "" {
			return "", newViolation(ReasonTopicAliasInvalid, "empty topic with no alias")
		}
		return topic, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if alias > m.max {
		return "", newViolation(ReasonTopicAliasInvalid, "alias above the offered maximum")
	}
	if topic != "" {
		m.byAlias[alias] = topic
		return topic, nil
	}
	topic, ok := m.byAlias[alias]
	if !ok {
		return "", newViolation(ReasonTopicAliasInvalid, "unknown topic alias")
	}
	return topic, nil
}

// Reset clears the table; aliases do not survive reconnection.
func (m *TopicAliasManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTopic = make(map[string]uint16)
	m.byAlias = make(map[uint16]string)
	m.next = 1
}

// Package level maps global escalation tiers onto an adapter's ordered list
// of notification channels.
package level

import "fmt"

// Manager holds one adapter's ordered channel list and derives the tier
// arithmetic of the escalation protocol from it. T is the adapter's channel
// address type (room id, integration key, mail address). Managers are
// immutable after construction.
type Manager[T comparable] struct {
	levels []T
}

// NewManager creates a manager over the given channel order. At least one
// channel is required.
func NewManager[T comparable](levels []T) (*Manager[T], error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("level manager requires at least one channel")
	}
	copied := make([]T, len(levels))
	copy(copied, levels)
	return &Manager[T]{levels: copied}, nil
}

// Len returns the number of channels.
func (m *Manager[T]) Len() int {
	return len(m.levels)
}

// Single returns the channel for tier i, clamped to the last channel.
// Escalation past the last tier re-notifies the last channel.
func (m *Manager[T]) Single(i uint) T {
	if int(i) >= len(m.levels) {
		return m.levels[len(m.levels)-1]
	}
	return m.levels[i]
}

// WithPrev returns the channel for tier i together with its predecessor. The
// predecessor is nil on tier 0. Past the last tier both are clamped so the
// last channel keeps being re-notified with the one before it as predecessor.
func (m *Manager[T]) WithPrev(i uint) (prev *T, now T) {
	n := len(m.levels)
	switch {
	case i == 0 || n == 1:
		return nil, m.levels[min(int(i), n-1)]
	case int(i) < n:
		return &m.levels[i-1], m.levels[i]
	default:
		return &m.levels[n-2], m.levels[n-1]
	}
}

// Contains reports whether t is one of the channels.
func (m *Manager[T]) Contains(t T) bool {
	_, ok := m.Position(t)
	return ok
}

// Position returns the tier of the first channel equal to t.
func (m *Manager[T]) Position(t T) (uint, bool) {
	for i, l := range m.levels {
		if l == t {
			return uint(i), true
		}
	}
	return 0, false
}

// IsLast reports whether t is the final escalation channel.
func (m *Manager[T]) IsLast(t T) bool {
	pos, ok := m.Position(t)
	return ok && int(pos) == len(m.levels)-1
}

// AllUpToExcluding returns the channels of tiers [0, min(i, len)) with any
// channel equal to excluded removed. This is the retro-broadcast set after an
// acknowledgement: everyone previously alerted except the acknowledger's own
// channel.
func (m *Manager[T]) AllUpToExcluding(i uint, excluded T) []T {
	end := min(int(i), len(m.levels))
	out := make([]T, 0, end)
	for _, l := range m.levels[:end] {
		if l == excluded {
			continue
		}
		out = append(out, l)
	}
	return out
}

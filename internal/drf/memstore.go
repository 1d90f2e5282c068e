package drf

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store. It backs tests and synthetic captures:
// Append grows a channel's bounds exactly the way a live recorder does, so
// streaming-mode behavior can be exercised without touching disk.
type MemStore struct {
	mu       sync.RWMutex
	order    []string
	channels map[string]*memChannel

	// ReadHook, when set, runs at the start of every ReadVector with the
	// channel name. Tests use it to trigger aborts mid-read.
	ReadHook func(channel string)
}

type memChannel struct {
	props Properties
	first int64
	data  []complex128 // interleaved, len = count*NumSubchannels
}

// NewMemStore returns an empty in-memory archive.
func NewMemStore() *MemStore {
	return &MemStore{channels: make(map[string]*memChannel)}
}

// AddChannel registers a channel whose first valid sample sits at the
// absolute index first. Registration order is the channel order.
func (m *MemStore) AddChannel(name string, props Properties, first int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; ok {
		return
	}
	if props.NumSubchannels <= 0 {
		props.NumSubchannels = 1
	}
	m.order = append(m.order, name)
	m.channels[name] = &memChannel{props: props, first: first}
}

// Append extends a channel with interleaved samples, growing its bounds.
func (m *MemStore) Append(name string, samples []complex128) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		return fmt.Errorf("channel %q: %w", name, ErrNotFound)
	}
	if len(samples)%ch.props.NumSubchannels != 0 {
		return fmt.Errorf("append of %d values does not divide %d subchannels",
			len(samples), ch.props.NumSubchannels)
	}
	ch.data = append(ch.data, samples...)
	return nil
}

// Channels implements Store.
func (m *MemStore) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Properties implements Store.
func (m *MemStore) Properties(channel string) (Properties, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[channel]
	if !ok {
		return Properties{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return ch.props, nil
}

// Bounds implements Store.
func (m *MemStore) Bounds(channel string) (Bounds, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[channel]
	if !ok {
		return Bounds{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	count := int64(len(ch.data) / ch.props.NumSubchannels)
	if count == 0 {
		return Bounds{First: ch.first, Last: ch.first}, nil
	}
	return Bounds{First: ch.first, Last: ch.first + count - 1}, nil
}

// ReadVector implements Store.
func (m *MemStore) ReadVector(channel string, start, count int64) ([]complex128, error) {
	m.mu.RLock()
	hook := m.ReadHook
	m.mu.RUnlock()
	if hook != nil {
		hook(channel)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[channel]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	numSub := int64(ch.props.NumSubchannels)
	total := int64(len(ch.data)) / numSub
	if start < ch.first || start+count > ch.first+total {
		return nil, fmt.Errorf("read [%d, %d) of %q: %w", start, start+count, channel, ErrOutOfRange)
	}
	off := (start - ch.first) * numSub
	out := make([]complex128, count*numSub)
	copy(out, ch.data[off:off+count*numSub])
	return out, nil
}

var _ Store = (*MemStore)(nil)

// Package trace holds the per-channel intensity data of capillary electrophoresis samples and
// the provider interface the rest of fragsize reads it through.
package trace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Trace is an ordered sequence of intensities (RFU), one per scan point. Traces are never
// modified once loaded; corrections always return a new slice.
type Trace []float64

// Key identifies one channel of one sample
type Key struct {
	Sample  string
	Channel string
}

var (
	// ErrUnknownSample is returned when a sample was never loaded
	ErrUnknownSample = errors.New("unknown sample")

	// ErrMissingChannel is the sentinel behind MissingChannelError
	ErrMissingChannel = errors.New("channel not present in sample")
)

// MissingChannelError reports a channel absent from a sample's loaded traces
type MissingChannelError struct {
	Sample  string
	Channel string
}

func (e *MissingChannelError) Error() string {
	return fmt.Sprintf("channel %s not present in sample %s", e.Channel, e.Sample)
}

func (e *MissingChannelError) Unwrap() error { return ErrMissingChannel }

// Provider supplies traces that were already parsed from instrument files
type Provider interface {
	// Samples returns sample ids in load order
	Samples() []string
	// Channels returns the channel ids loaded for a sample, sorted
	Channels(sample string) []string
	// Trace returns the trace of one sample channel
	Trace(sample, channel string) (Trace, error)
}

// MemoryProvider is a Provider backed by fully materialized in-memory traces
type MemoryProvider struct {
	mu      sync.RWMutex
	order   []string
	samples map[string]map[string]Trace
}

// NewMemoryProvider creates an empty MemoryProvider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		samples: make(map[string]map[string]Trace),
	}
}

// Add stores a copy of a channel trace, registering the sample on first use
func (m *MemoryProvider) Add(sample, channel string, data []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels, ok := m.samples[sample]
	if !ok {
		channels = make(map[string]Trace)
		m.samples[sample] = channels
		m.order = append(m.order, sample)
	}
	channels[channel] = append(Trace(nil), data...)
}

// Samples returns sample ids in the order they were added
func (m *MemoryProvider) Samples() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Channels returns the sorted channel ids of a sample
func (m *MemoryProvider) Channels(sample string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := make([]string, 0, len(m.samples[sample]))
	for ch := range m.samples[sample] {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Trace returns a sample channel. The returned slice must be treated as read-only.
func (m *MemoryProvider) Trace(sample, channel string) (Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels, ok := m.samples[sample]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSample, sample)
	}
	tr, ok := channels[channel]
	if !ok {
		return nil, &MissingChannelError{Sample: sample, Channel: channel}
	}
	return tr, nil
}

// HasChannel reports whether a sample carries a channel
func HasChannel(p Provider, sample, channel string) bool {
	for _, ch := range p.Channels(sample) {
		if ch == channel {
			return true
		}
	}
	return false
}

// AllChannels returns the union of channel ids over every loaded sample, sorted
func AllChannels(p Provider) []string {
	seen := make(map[string]struct{})
	for _, s := range p.Samples() {
		for _, ch := range p.Channels(s) {
			seen[ch] = struct{}{}
		}
	}
	all := make([]string, 0, len(seen))
	for ch := range seen {
		all = append(all, ch)
	}
	sort.Strings(all)
	return all
}

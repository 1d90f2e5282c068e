/*
Package drf adapts channelized, time-indexed sample archives for the STI
engine. A Store exposes the raw archive surface (channel names, per-channel
properties, valid-sample bounds, positional reads); an Accessor layers exact
rational sample rates, reference-scale normalization, bounds caching, and
subchannel entry naming on top of any Store.

Bounds are mutable: a live capture appends samples and Last grows between
queries, so callers must treat every Bounds result as a snapshot.
*/
package drf

import "errors"

var (
	// ErrNotFound reports a location with no readable archive metadata,
	// or a channel name the archive does not carry.
	ErrNotFound = errors.New("drf: not found")

	// ErrOutOfRange reports a read request outside the channel's valid
	// sample bounds when bounds clamping was not requested.
	ErrOutOfRange = errors.New("drf: sample range outside valid bounds")
)

// Properties describes one channel's sample stream. Sample rates are exact
// rational numbers; archives recorded at e.g. 10^7/3 Hz cannot be expressed
// as a float without cumulative index drift over long captures.
type Properties struct {
	SampleRateNumerator   uint64
	SampleRateDenominator uint64
	NumSubchannels        int

	// Sample storage class, used to derive the reference scale.
	FloatSamples  bool // true for float archives (full scale is 1.0)
	PrecisionBits int  // significant bits per sample component
	ByteSize      int  // stored bytes per sample component
}

// Bounds is the valid sample index range of a channel, inclusive on both
// ends. First <= Last always holds for a non-empty channel.
type Bounds struct {
	First int64
	Last  int64
}

// Count returns the number of valid samples inside the bounds.
func (b Bounds) Count() int64 {
	return b.Last - b.First + 1
}

// Store is the raw archive surface consumed by the Accessor. Implementations
// must support concurrent reads: reads are positional and bounds queries are
// read-only snapshots, so sessions never need cross-store locking.
type Store interface {
	// Channels returns channel names in the archive's own registration
	// order. The order is stable across calls.
	Channels() []string

	// Properties returns the immutable stream description of a channel.
	Properties(channel string) (Properties, error)

	// Bounds returns the current valid sample range. It must be re-queried
	// for every planning pass; archives grow under live capture.
	Bounds(channel string) (Bounds, error)

	// ReadVector returns count raw samples starting at the absolute sample
	// index start, interleaved across subchannels (sample-major, so the
	// value for subchannel s of sample i sits at i*numSub+s). The request
	// must lie inside the current bounds.
	ReadVector(channel string, start, count int64) ([]complex128, error)
}

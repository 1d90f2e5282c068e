package drf

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReadSpan records the sample range of one read, for streaming continuation.
type ReadSpan struct {
	Start int64
	Count int64
}

// End returns the first sample index past the span.
func (s ReadSpan) End() int64 {
	return s.Start + s.Count
}

// Accessor wraps a Store with normalized reads and exact rational sample
// rate arithmetic. It is safe for concurrent use by multiple sessions.
type Accessor struct {
	store    Store
	channels []string
	props    map[string]Properties
	rates    map[string]*big.Rat
	refs     map[string]float64
	entries  map[string]entryKey
	names    []string

	mu        sync.RWMutex
	bounds    map[string]Bounds
	lastRead  map[string]ReadSpan
	timeFirst float64
	timeLast  float64
}

type entryKey struct {
	channel string
	sub     int // -1 selects all subchannels
}

// NewAccessor resolves channel metadata from the store and derives the
// per-channel reference scale and rational sample rate. It fails with
// ErrNotFound when the store carries no channels.
func NewAccessor(store Store) (*Accessor, error) {
	channels := store.Channels()
	if len(channels) == 0 {
		return nil, fmt.Errorf("archive has no channels: %w", ErrNotFound)
	}

	a := &Accessor{
		store:     store,
		channels:  channels,
		props:     make(map[string]Properties, len(channels)),
		rates:     make(map[string]*big.Rat, len(channels)),
		refs:      make(map[string]float64, len(channels)),
		entries:   make(map[string]entryKey),
		bounds:    make(map[string]Bounds, len(channels)),
		lastRead:  make(map[string]ReadSpan),
		timeFirst: math.Inf(1),
		timeLast:  math.Inf(-1),
	}

	for _, ch := range channels {
		props, err := store.Properties(ch)
		if err != nil {
			return nil, fmt.Errorf("properties of channel %q: %w", ch, err)
		}
		if props.SampleRateNumerator == 0 || props.SampleRateDenominator == 0 {
			return nil, fmt.Errorf("channel %q has zero sample rate", ch)
		}
		a.props[ch] = props
		a.rates[ch] = new(big.Rat).SetFrac(
			new(big.Int).SetUint64(props.SampleRateNumerator),
			new(big.Int).SetUint64(props.SampleRateDenominator),
		)
		a.refs[ch] = RefScale(props)

		a.entries[ch] = entryKey{channel: ch, sub: -1}
		for sub := 0; sub < props.NumSubchannels; sub++ {
			name := ch + ":" + strconv.Itoa(sub)
			a.entries[name] = entryKey{channel: ch, sub: sub}
			a.names = append(a.names, name)
		}

		bnds, err := store.Bounds(ch)
		if err != nil {
			return nil, fmt.Errorf("bounds of channel %q: %w", ch, err)
		}
		a.bounds[ch] = bnds
		a.growTimeBounds(ch, bnds)
	}
	sort.Strings(a.names)

	return a, nil
}

// RefScale derives the amplitude reference from channel properties: the
// value that maps a full-scale raw sample to 1.0 for dBFS display. Integer
// archives carry a half-bit correction per extra storage byte, a documented
// convention of the format; float archives are already full scale at 1.0.
func RefScale(props Properties) float64 {
	if props.FloatSamples {
		return 1.0
	}
	npow := float64(props.PrecisionBits) - 1.0
	npow += 0.5 * (float64(props.ByteSize) - 1.0)
	return math.Pow(2, npow)
}

// Channels returns channel names in archive registration order.
func (a *Accessor) Channels() []string {
	return a.channels
}

// Entries returns all subchannel entry names ("chan:sub"), sorted.
func (a *Accessor) Entries() []string {
	return a.names
}

// ResolveEntry splits an entry name into channel and subchannel index.
// A bare channel name selects all subchannels (sub == -1).
func (a *Accessor) ResolveEntry(entry string) (channel string, sub int, err error) {
	key, ok := a.entries[entry]
	if !ok {
		return "", 0, fmt.Errorf("entry %q: %w", entry, ErrNotFound)
	}
	return key.channel, key.sub, nil
}

// SubchannelCount returns the number of subchannels of a channel.
func (a *Accessor) SubchannelCount(channel string) (int, error) {
	props, ok := a.props[channel]
	if !ok {
		return 0, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return props.NumSubchannels, nil
}

// Properties returns the immutable stream description of a channel.
func (a *Accessor) Properties(channel string) (Properties, error) {
	props, ok := a.props[channel]
	if !ok {
		return Properties{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return props, nil
}

// SampleRate returns a copy of the channel's exact rational sample rate in Hz.
func (a *Accessor) SampleRate(channel string) (*big.Rat, error) {
	rate, ok := a.rates[channel]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return new(big.Rat).Set(rate), nil
}

// Reference returns the channel's amplitude reference scale.
func (a *Accessor) Reference(channel string) (float64, error) {
	ref, ok := a.refs[channel]
	if !ok {
		return 0, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return ref, nil
}

// Bounds re-queries the store for the channel's current valid sample range
// and refreshes the cached copy. Live archives grow between calls.
func (a *Accessor) Bounds(channel string) (Bounds, error) {
	if _, ok := a.props[channel]; !ok {
		return Bounds{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	bnds, err := a.store.Bounds(channel)
	if err != nil {
		return Bounds{}, err
	}

	a.mu.Lock()
	a.bounds[channel] = bnds
	a.growTimeBounds(channel, bnds)
	a.mu.Unlock()

	return bnds, nil
}

// RefreshBounds re-queries bounds for every channel.
func (a *Accessor) RefreshBounds() error {
	for _, ch := range a.channels {
		if _, err := a.Bounds(ch); err != nil {
			return err
		}
	}
	return nil
}

// TimeBounds returns the archive-wide time extent in epoch seconds: the
// earliest first-valid and latest last-valid instant seen across all
// channels since the accessor opened.
func (a *Accessor) TimeBounds() (first, last float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeFirst, a.timeLast
}

// growTimeBounds widens the archive time extent. Caller holds a.mu except
// during construction, when no other goroutine can see the accessor yet.
func (a *Accessor) growTimeBounds(channel string, bnds Bounds) {
	rate := a.rates[channel]
	first, _ := new(big.Rat).Quo(new(big.Rat).SetInt64(bnds.First), rate).Float64()
	last, _ := new(big.Rat).Quo(new(big.Rat).SetInt64(bnds.Last), rate).Float64()
	if first < a.timeFirst {
		a.timeFirst = first
	}
	if last > a.timeLast {
		a.timeLast = last
	}
}

// Read returns count normalized samples of an entry starting at the
// absolute sample index start, one slice per selected subchannel. When
// clamp is true, the request silently shrinks to the intersection with the
// current bounds (an empty intersection yields zero-length slices); when
// false, a request outside bounds fails with ErrOutOfRange. The actual span
// read is returned and recorded as the entry's last read.
func (a *Accessor) Read(entry string, start, count int64, clamp bool) ([][]complex128, ReadSpan, error) {
	channel, sub, err := a.ResolveEntry(entry)
	if err != nil {
		return nil, ReadSpan{}, err
	}

	bnds, err := a.Bounds(channel)
	if err != nil {
		return nil, ReadSpan{}, err
	}

	if clamp {
		end := start + count
		if start < bnds.First {
			start = bnds.First
		}
		if end > bnds.Last+1 {
			end = bnds.Last + 1
		}
		count = end - start
		if count < 0 {
			count = 0
		}
	} else if start < bnds.First || start+count > bnds.Last+1 {
		return nil, ReadSpan{}, fmt.Errorf(
			"read [%d, %d) of %q outside bounds [%d, %d]: %w",
			start, start+count, entry, bnds.First, bnds.Last, ErrOutOfRange)
	}

	numSub := a.props[channel].NumSubchannels
	ref := complex(a.refs[channel], 0)

	subs := []int{sub}
	if sub < 0 {
		subs = make([]int, numSub)
		for i := range subs {
			subs[i] = i
		}
	}

	out := make([][]complex128, len(subs))
	for i := range out {
		out[i] = make([]complex128, count)
	}

	if count > 0 {
		raw, err := a.store.ReadVector(channel, start, count)
		if err != nil {
			return nil, ReadSpan{}, fmt.Errorf("read %q: %w", entry, err)
		}
		for i, s := range subs {
			dst := out[i]
			for j := int64(0); j < count; j++ {
				dst[j] = raw[j*int64(numSub)+int64(s)] / ref
			}
		}
	}

	span := ReadSpan{Start: start, Count: count}
	a.mu.Lock()
	a.lastRead[entry] = span
	a.mu.Unlock()

	return out, span, nil
}

// LastRead returns the most recent span read for an entry, if any.
func (a *Accessor) LastRead(entry string) (ReadSpan, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	span, ok := a.lastRead[entry]
	return span, ok
}

// TimeToSample converts epoch seconds to the containing sample index using
// exact rational arithmetic (floor of seconds * rate).
func (a *Accessor) TimeToSample(channel string, seconds float64) (int64, error) {
	rate, ok := a.rates[channel]
	if !ok {
		return 0, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	t := new(big.Rat)
	if _, ok := t.SetString(strconv.FormatFloat(seconds, 'f', -1, 64)); !ok {
		return 0, fmt.Errorf("cannot express %v as a rational", seconds)
	}
	t.Mul(t, rate)
	return floorRat(t), nil
}

// SampleToTime converts a sample index to epoch seconds.
func (a *Accessor) SampleToTime(channel string, sample int64) (float64, error) {
	rate, ok := a.rates[channel]
	if !ok {
		return 0, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	t, _ := new(big.Rat).Quo(new(big.Rat).SetInt64(sample), rate).Float64()
	return t, nil
}

// SampleToDatetime converts a sample index to a UTC wall-clock instant.
func (a *Accessor) SampleToDatetime(channel string, sample int64) (time.Time, error) {
	rate, ok := a.rates[channel]
	if !ok {
		return time.Time{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	t := new(big.Rat).Quo(new(big.Rat).SetInt64(sample), rate)
	secs := floorRat(t)
	frac := new(big.Rat).Sub(t, new(big.Rat).SetInt64(secs))
	nanos := floorRat(frac.Mul(frac, big.NewRat(1e9, 1)))
	return time.Unix(secs, nanos).UTC(), nil
}

// floorRat returns the largest int64 <= r.
func floorRat(r *big.Rat) int64 {
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(r.Num(), r.Denom(), m)
	return q.Int64()
}

// SplitEntry is a convenience for display code: it splits "chan:sub"
// without consulting the archive.
func SplitEntry(entry string) (channel string, sub int) {
	idx := strings.LastIndexByte(entry, ':')
	if idx < 0 {
		return entry, -1
	}
	sub, err := strconv.Atoi(entry[idx+1:])
	if err != nil {
		return entry, -1
	}
	return entry[:idx], sub
}

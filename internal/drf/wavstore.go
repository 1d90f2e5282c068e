package drf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-audio/wav"
)

// DirStore serves a directory of WAV files as an archive: one channel per
// file (named after the file, without extension), one subchannel per WAV
// channel. Samples are decoded eagerly at open; this store targets
// viewer-scale captures, not multi-hour recordings.
//
// WAV rates are integral, so SampleRateDenominator is always 1 here; the
// rational plumbing still matters for stores that front fractional-rate
// archives.
type DirStore struct {
	dir      string
	order    []string
	channels map[string]*memChannel
}

// Open opens a directory archive and wraps it in an Accessor. It fails
// with ErrNotFound when the path does not exist or holds no WAV channels.
func Open(path string) (*Accessor, error) {
	store, err := OpenDir(path)
	if err != nil {
		return nil, err
	}
	return NewAccessor(store)
}

// OpenDir opens a directory of WAV files as a DirStore.
func OpenDir(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("archive directory %q: %w", dir, ErrNotFound)
	}

	names, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, fmt.Errorf("scanning %q: %w", dir, err)
	}
	sort.Strings(names)

	store := &DirStore{dir: dir, channels: make(map[string]*memChannel)}
	for _, name := range names {
		ch, props, err := loadWavChannel(name)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", name, err)
		}
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		store.order = append(store.order, base)
		store.channels[base] = &memChannel{props: props, data: ch}
	}

	if len(store.order) == 0 {
		return nil, fmt.Errorf("no WAV channels under %q: %w", dir, ErrNotFound)
	}
	return store, nil
}

func loadWavChannel(path string) ([]complex128, Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Properties{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, Properties{}, fmt.Errorf("not a valid WAV file")
	}
	if d.WavAudioFormat != 1 {
		return nil, Properties{}, fmt.Errorf("unsupported WAV sample format %d (PCM only)", d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, Properties{}, fmt.Errorf("decoding PCM: %w", err)
	}

	props := Properties{
		SampleRateNumerator:   uint64(d.SampleRate),
		SampleRateDenominator: 1,
		NumSubchannels:        int(d.NumChans),
		FloatSamples:          false,
		PrecisionBits:         int(d.BitDepth),
		ByteSize:              int(d.BitDepth) / 8,
	}

	data := make([]complex128, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = complex(float64(v), 0)
	}
	return data, props, nil
}

// Channels implements Store.
func (s *DirStore) Channels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Properties implements Store.
func (s *DirStore) Properties(channel string) (Properties, error) {
	ch, ok := s.channels[channel]
	if !ok {
		return Properties{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	return ch.props, nil
}

// Bounds implements Store. Directory archives are complete captures, so
// bounds never move, but callers still treat them as snapshots.
func (s *DirStore) Bounds(channel string) (Bounds, error) {
	ch, ok := s.channels[channel]
	if !ok {
		return Bounds{}, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	count := int64(len(ch.data) / ch.props.NumSubchannels)
	if count == 0 {
		return Bounds{}, nil
	}
	return Bounds{First: 0, Last: count - 1}, nil
}

// ReadVector implements Store.
func (s *DirStore) ReadVector(channel string, start, count int64) ([]complex128, error) {
	ch, ok := s.channels[channel]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channel, ErrNotFound)
	}
	numSub := int64(ch.props.NumSubchannels)
	total := int64(len(ch.data)) / numSub
	if start < 0 || start+count > total {
		return nil, fmt.Errorf("read [%d, %d) of %q: %w", start, start+count, channel, ErrOutOfRange)
	}
	out := make([]complex128, count*numSub)
	copy(out, ch.data[start*numSub:(start+count)*numSub])
	return out, nil
}

var _ Store = (*DirStore)(nil)

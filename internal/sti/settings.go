/*
Package sti computes spectral time intensity (STI) cubes from channelized
sample archives: per time bin, a Kaiser-tapered averaged periodogram over a
planned block of raw samples, stacked into a frequency x time x subchannel
cube with a median spectrum derived per iteration.

A Processor runs one channel entry's processing loop in a background
goroutine and publishes results over per-session event channels; a Manager
owns the set of concurrent sessions.
*/
package sti

import (
	"math/big"

	"sti/internal/drf"
	"sti/pkg/bitint"
)

// Settings is the operator-tunable parameter set of one session. A running
// loop reads exactly one snapshot per iteration, so every published cube
// reflects a single consistent Settings value.
type Settings struct {
	FFTLength    int     // frequency bins per spectrum; odd values round up
	Integrations int     // periodograms averaged per time bin, >= 1
	TimeBins     int     // time bins per cube, >= 1
	WindowStart  float64 // playback window start, epoch seconds
	WindowEnd    float64 // playback window end, epoch seconds
}

// Normalized returns a copy with degenerate values corrected: odd FFT
// lengths round up by one, counts clamp to their minimums. Correction, not
// rejection — the operator sees the effective values in the next settings
// event.
func (s Settings) Normalized() Settings {
	s.FFTLength = bitint.NextEven(s.FFTLength)
	if s.Integrations < 1 {
		s.Integrations = 1
	}
	if s.TimeBins < 1 {
		s.TimeBins = 1
	}
	if s.WindowEnd < s.WindowStart {
		s.WindowEnd = s.WindowStart
	}
	return s
}

// SegmentLength returns the raw samples consumed per time bin.
func (s Settings) SegmentLength() int64 {
	return int64(s.FFTLength) * int64(s.Integrations)
}

// Effective is the loop's view of its own parameters, published once per
// iteration so consumer widgets stay synchronized even when the loop (not
// the operator) moved them, e.g. bounds growth in streaming mode.
type Effective struct {
	Settings

	Entry       string     // channel entry being processed
	SampleRate  *big.Rat   // exact rational rate of the channel
	BinWidth    float64    // frequency resolution, Hz
	Frequencies []float64  // centered frequency axis, length FFTLength
	Bounds      drf.Bounds // channel bounds snapshot for this iteration
	TimeFirst   float64    // archive time extent, epoch seconds
	TimeLast    float64
}

package sti

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Cube is one STI result: linear power over frequency x time x subchannel,
// with parallel frequency and timestamp axes. Both axes travel with the
// cube and are labeled explicitly; display orientation is the consumer's
// choice. Consumers receive their own Cube and may mutate it freely.
type Cube struct {
	NFFT   int
	NTime  int
	NumSub int

	// Power holds linear (pre-dB) values, one contiguous spectrum per
	// (time bin, subchannel): index (f, t, s) = (s*NTime+t)*NFFT + f.
	Power []float64

	Frequencies []float64 // length NFFT, Hz, DC at index NFFT/2
	Times       []float64 // length NTime, epoch seconds of each bin start
}

// NewCube allocates a zeroed cube of the given shape.
func NewCube(nfft, ntime, numSub int) *Cube {
	return &Cube{
		NFFT:   nfft,
		NTime:  ntime,
		NumSub: numSub,
		Power:  make([]float64, nfft*ntime*numSub),
		Times:  make([]float64, ntime),
	}
}

// Spectrum returns the mutable power slice of one (time bin, subchannel).
func (c *Cube) Spectrum(t, sub int) []float64 {
	off := (sub*c.NTime + t) * c.NFFT
	return c.Power[off : off+c.NFFT]
}

// At returns the power value at (frequency bin, time bin, subchannel).
func (c *Cube) At(f, t, sub int) float64 {
	return c.Power[(sub*c.NTime+t)*c.NFFT+f]
}

// Median computes the per-frequency-bin median across the time axis, one
// row per subchannel (shape NumSub x NFFT). It is recomputed from the
// whole cube on every call and never updated incrementally, so it reflects
// only the current window. Even-length time axes take the lower-middle
// empirical quantile.
func (c *Cube) Median() [][]float64 {
	med := make([][]float64, c.NumSub)
	scratch := make([]float64, c.NTime)
	for sub := range med {
		med[sub] = make([]float64, c.NFFT)
		for f := 0; f < c.NFFT; f++ {
			for t := 0; t < c.NTime; t++ {
				scratch[t] = c.At(f, t, sub)
			}
			sort.Float64s(scratch)
			med[sub][f] = stat.Quantile(0.5, stat.Empirical, scratch, nil)
		}
	}
	return med
}

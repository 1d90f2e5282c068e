package sti

import (
	"math/big"

	"sti/internal/drf"
)

// ReadRequest is one planned raw read: Count samples starting at Start,
// feeding exactly one output time bin.
type ReadRequest struct {
	Start int64
	Count int64
}

// ReadPlan is an ordered sequence of per-time-bin read requests.
type ReadPlan []ReadRequest

// Plan maps a half-open sample window [start, end) onto ntime evenly spaced
// segment reads of nfft*nIntegrations samples each. Starts interpolate
// linearly over [start, end-L] so the last segment never runs past end.
// A window shorter than one segment collapses every entry onto the single
// feasible start; entries are clamped into bounds and the plan is always
// ntime long — degenerate requests yield a valid, if redundant, plan.
func Plan(bnds drf.Bounds, start, end int64, nfft, nIntegrations, ntime int) ReadPlan {
	segLen := int64(nfft) * int64(nIntegrations)

	lastStart := end - segLen
	if lastStart < start {
		lastStart = start
	}

	plan := make(ReadPlan, ntime)
	span := lastStart - start
	for i := range plan {
		var offset int64
		if ntime > 1 && span > 0 {
			// Integer interpolation: i*span/(ntime-1) stays exact for
			// any archive position a float64 mantissa would truncate.
			offset = int64(i) * span / int64(ntime-1)
		}
		plan[i] = ReadRequest{
			Start: clampStart(start+offset, bnds, segLen),
			Count: segLen,
		}
	}
	return plan
}

// clampStart forces a segment start into [First, Last-segLen] so the
// segment's final sample stays inside bounds. Archives shorter than one
// segment clamp to First; the read layer shrinks the count.
func clampStart(s int64, bnds drf.Bounds, segLen int64) int64 {
	if max := bnds.Last - segLen; s > max {
		s = max
	}
	if s < bnds.First {
		s = bnds.First
	}
	return s
}

// StreamingWindow derives the sliding live window: it ends at the current
// last valid sample and spans windowSeconds back from there, clamped to the
// first valid sample. Re-derived every iteration so the window tracks
// archive growth.
func StreamingWindow(bnds drf.Bounds, rate *big.Rat, windowSeconds float64) (start, end int64) {
	end = bnds.Last
	span := spanSamples(rate, windowSeconds)
	start = end - span
	if start < bnds.First {
		start = bnds.First
	}
	return start, end
}

// PositionToSample translates a fractional slider position in [0, 1] into
// an absolute sample index against the current bounds.
func PositionToSample(bnds drf.Bounds, frac float64) int64 {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return bnds.First + int64(frac*float64(bnds.Last-bnds.First))
}

// spanSamples converts a duration in seconds to a sample count using the
// exact rational rate (floor of seconds * rate).
func spanSamples(rate *big.Rat, seconds float64) int64 {
	s := new(big.Rat).SetFloat64(seconds)
	if s == nil {
		return 0
	}
	s.Mul(s, rate)
	q := new(big.Int).Div(s.Num(), s.Denom())
	return q.Int64()
}

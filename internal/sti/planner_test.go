package sti

import (
	"math/big"
	"testing"

	"sti/internal/drf"
)

func TestPlanCoversWindow(t *testing.T) {
	t.Parallel()

	bnds := drf.Bounds{First: 0, Last: 80000}
	const (
		nfft  = 1024
		nInt  = 2
		ntime = 50
	)
	segLen := int64(nfft * nInt)

	plan := Plan(bnds, 0, 80000, nfft, nInt, ntime)

	if len(plan) != ntime {
		t.Fatalf("plan length = %d, want %d", len(plan), ntime)
	}
	if plan[0].Start != 0 {
		t.Errorf("first start = %d, want 0", plan[0].Start)
	}
	if got, want := plan[ntime-1].Start, int64(80000)-segLen; got != want {
		t.Errorf("last start = %d, want %d", got, want)
	}

	prev := int64(-1)
	for i, req := range plan {
		if req.Count != segLen {
			t.Fatalf("request %d count = %d, want %d", i, req.Count, segLen)
		}
		if req.Start < prev {
			t.Fatalf("request %d start %d precedes previous %d", i, req.Start, prev)
		}
		if req.Start < bnds.First || req.Start+req.Count > bnds.Last {
			t.Fatalf("request %d [%d, %d) escapes bounds [%d, %d]",
				i, req.Start, req.Start+req.Count, bnds.First, bnds.Last)
		}
		prev = req.Start
	}
}

func TestPlanExactInterpolation(t *testing.T) {
	t.Parallel()

	// Archive positions past float64's integer precision: naive float
	// interpolation would land segments on the wrong sample.
	first := int64(1) << 54
	bnds := drf.Bounds{First: first, Last: first + 1_000_000}
	const (
		nfft  = 512
		ntime = 100
	)
	segLen := int64(nfft)

	plan := Plan(bnds, bnds.First, bnds.Last, nfft, 1, ntime)

	span := (bnds.Last - segLen) - bnds.First
	for i, req := range plan {
		want := bnds.First + int64(i)*span/int64(ntime-1)
		if req.Start != want {
			t.Fatalf("request %d start = %d, want %d", i, req.Start, want)
		}
	}
}

func TestPlanDegenerateWindow(t *testing.T) {
	t.Parallel()

	bnds := drf.Bounds{First: 100, Last: 100000}

	// Window shorter than one segment: every entry collapses onto the
	// single feasible start.
	plan := Plan(bnds, 5000, 5100, 1024, 1, 10)
	for i, req := range plan {
		if req.Start != 5000 {
			t.Errorf("request %d start = %d, want 5000", i, req.Start)
		}
		if req.Count != 1024 {
			t.Errorf("request %d count = %d, want 1024", i, req.Count)
		}
	}
}

func TestPlanSingleBin(t *testing.T) {
	t.Parallel()

	bnds := drf.Bounds{First: 0, Last: 10000}
	plan := Plan(bnds, 2000, 8000, 256, 1, 1)
	if len(plan) != 1 {
		t.Fatalf("plan length = %d, want 1", len(plan))
	}
	if plan[0].Start != 2000 {
		t.Errorf("start = %d, want 2000", plan[0].Start)
	}
}

func TestPlanArchiveShorterThanSegment(t *testing.T) {
	t.Parallel()

	bnds := drf.Bounds{First: 0, Last: 500}
	plan := Plan(bnds, 0, 500, 1024, 1, 5)
	for i, req := range plan {
		if req.Start != bnds.First {
			t.Errorf("request %d start = %d, want %d", i, req.Start, bnds.First)
		}
	}
}

func TestStreamingWindowTracksLast(t *testing.T) {
	t.Parallel()

	// 10 MHz / 3: three seconds back from the live edge is exactly 10^7
	// samples with rational arithmetic.
	rate := big.NewRat(10_000_000, 3)
	bnds := drf.Bounds{First: 0, Last: 50_000_000}

	start, end := StreamingWindow(bnds, rate, 3.0)
	if end != bnds.Last {
		t.Errorf("end = %d, want %d", end, bnds.Last)
	}
	if want := bnds.Last - 10_000_000; start != want {
		t.Errorf("start = %d, want %d", start, want)
	}
}

func TestStreamingWindowClampsToFirst(t *testing.T) {
	t.Parallel()

	rate := big.NewRat(8000, 1)
	bnds := drf.Bounds{First: 1000, Last: 5000}

	start, end := StreamingWindow(bnds, rate, 10.0) // wants 80000 samples
	if start != bnds.First {
		t.Errorf("start = %d, want %d", start, bnds.First)
	}
	if end != bnds.Last {
		t.Errorf("end = %d, want %d", end, bnds.Last)
	}
}

func TestPositionToSample(t *testing.T) {
	t.Parallel()

	bnds := drf.Bounds{First: 1000, Last: 9000}
	tests := []struct {
		frac float64
		want int64
	}{
		{0, 1000},
		{1, 9000},
		{0.5, 5000},
		{-0.3, 1000},
		{1.7, 9000},
	}
	for _, tc := range tests {
		if got := PositionToSample(bnds, tc.frac); got != tc.want {
			t.Errorf("PositionToSample(%v) = %d, want %d", tc.frac, got, tc.want)
		}
	}
}

func TestSettingsNormalized(t *testing.T) {
	t.Parallel()

	s := Settings{FFTLength: 1023, Integrations: 0, TimeBins: -4, WindowStart: 10, WindowEnd: 5}.Normalized()
	if s.FFTLength != 1024 {
		t.Errorf("FFTLength = %d, want 1024", s.FFTLength)
	}
	if s.Integrations != 1 {
		t.Errorf("Integrations = %d, want 1", s.Integrations)
	}
	if s.TimeBins != 1 {
		t.Errorf("TimeBins = %d, want 1", s.TimeBins)
	}
	if s.WindowEnd != s.WindowStart {
		t.Errorf("WindowEnd = %v, want %v", s.WindowEnd, s.WindowStart)
	}
	if got := s.SegmentLength(); got != 1024 {
		t.Errorf("SegmentLength = %d, want 1024", got)
	}
}

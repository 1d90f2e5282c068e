package sti

import (
	"fmt"
	"math"
	"math/big"

	"gonum.org/v1/gonum/dsp/fourier"
)

// KaiserBeta is the taper shape parameter. 1.7 gives a mild taper close to
// the one the capture tooling applies, trading a slightly wider main lobe
// for lower sidelobes than a rectangular window.
const KaiserBeta = 1.7

// DBFloor replaces non-positive or infinite power values before the log10
// in dB conversion.
const DBFloor = 1e-8

// Engine computes tapered periodograms of fixed FFT length. All buffers are
// pre-allocated at construction; Periodogram performs no allocations and no
// hidden state survives between calls, so identical input yields
// bit-identical output.
type Engine struct {
	nfft   int
	fft    *fourier.CmplxFFT
	window []float64
	scale  float64 // 1 / (sum of window)^2: "spectrum" scaling

	input  []complex128
	output []complex128
}

// NewEngine creates an engine for an even FFT length.
func NewEngine(nfft int) (*Engine, error) {
	if nfft < 2 || nfft%2 != 0 {
		return nil, fmt.Errorf("fft length must be even and >= 2, got %d", nfft)
	}

	window := kaiserWindow(nfft, KaiserBeta)
	var wsum float64
	for _, w := range window {
		wsum += w
	}

	return &Engine{
		nfft:   nfft,
		fft:    fourier.NewCmplxFFT(nfft),
		window: window,
		scale:  1 / (wsum * wsum),
		input:  make([]complex128, nfft),
		output: make([]complex128, nfft),
	}, nil
}

// NFFT returns the engine's FFT length.
func (e *Engine) NFFT() int {
	return e.nfft
}

// FrequencyAxis returns the centered frequency axis for a channel rate:
// nfft steps of rate/nfft from -rate/2 up, with DC exactly at index nfft/2.
// The axis depends only on (rate, nfft) and must be recomputed when either
// changes.
func (e *Engine) FrequencyAxis(rate *big.Rat) []float64 {
	sr, _ := rate.Float64()
	df := sr / float64(e.nfft)
	axis := make([]float64, e.nfft)
	for i := range axis {
		axis[i] = float64(i-e.nfft/2) * df
	}
	return axis
}

// Periodogram computes the averaged, FFT-shifted power spectrum of a
// segment into dst (length nfft, linear power). The segment is split into
// nIntegrations consecutive nfft-sample slices; each is Kaiser-tapered,
// transformed, and squared, and the slices are averaged in the linear
// domain. Segments shorter than nfft*nIntegrations use however many full
// slices fit; a segment shorter than one slice yields all zeros.
func (e *Engine) Periodogram(segment []complex128, nIntegrations int, dst []float64) error {
	if len(dst) != e.nfft {
		return fmt.Errorf("dst length %d does not match fft length %d", len(dst), e.nfft)
	}
	if nIntegrations < 1 {
		nIntegrations = 1
	}

	for i := range dst {
		dst[i] = 0
	}

	slices := len(segment) / e.nfft
	if slices > nIntegrations {
		slices = nIntegrations
	}
	if slices == 0 {
		return nil
	}

	half := e.nfft / 2
	for s := 0; s < slices; s++ {
		slice := segment[s*e.nfft : (s+1)*e.nfft]
		for i := range e.input {
			e.input[i] = slice[i] * complex(e.window[i], 0)
		}
		e.fft.Coefficients(e.output, e.input)

		// Accumulate |X|^2 with the shift folded into the index: output
		// bin k lands at (k+nfft/2) mod nfft, putting DC at the center.
		for k, c := range e.output {
			j := k + half
			if j >= e.nfft {
				j -= e.nfft
			}
			re, im := real(c), imag(c)
			dst[j] += (re*re + im*im) * e.scale
		}
	}

	inv := 1 / float64(slices)
	for i := range dst {
		dst[i] *= inv
	}
	return nil
}

// ToDB converts linear power to decibels, flooring non-positive and
// infinite values at DBFloor first.
func ToDB(v float64) float64 {
	if !(v > 0) || math.IsInf(v, 1) {
		v = DBFloor
	}
	return 10 * math.Log10(v)
}

// kaiserWindow returns an n-point Kaiser window with shape beta.
func kaiserWindow(n int, beta float64) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	denom := besselI0(beta)
	m := float64(n - 1)
	for i := range w {
		x := 2*float64(i)/m - 1
		t := 1 - x*x
		if t < 0 {
			t = 0
		}
		w[i] = besselI0(beta*math.Sqrt(t)) / denom
	}
	return w
}

// besselI0 evaluates the zeroth-order modified Bessel function of the
// first kind by its power series; terms shrink fast for the small beta
// values used here.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 64; k++ {
		r := half / float64(k)
		term *= r * r
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

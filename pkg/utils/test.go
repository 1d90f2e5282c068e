// Package utils holds shared test helpers: synthetic signal generation and
// spectrum inspection used by the drf and sti package tests.
package utils

import "math"

// GenerateTone returns size complex baseband samples of a unit-amplitude
// complex exponential at the given frequency (Hz, may be negative).
func GenerateTone(size int, sampleRate, frequency float64) []complex128 {
	buffer := make([]complex128, size)
	for i := range buffer {
		phase := 2 * math.Pi * frequency * float64(i) / sampleRate
		buffer[i] = complex(math.Cos(phase), math.Sin(phase))
	}
	return buffer
}

// GenerateRealTone returns size real-valued samples of a sinusoid at the
// given frequency, scaled by amp.
func GenerateRealTone(size int, sampleRate, frequency, amp float64) []complex128 {
	buffer := make([]complex128, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = complex(amp*math.Sin(2*math.Pi*frequency*t), 0)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in power within
// [startBin, endBin], clamped to the valid range.
func FindPeakBin(power []float64, startBin, endBin int) int {
	if len(power) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(power) {
		endBin = len(power) - 1
	}

	peakBin := startBin
	peakValue := power[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if power[bin] > peakValue {
			peakValue = power[bin]
			peakBin = bin
		}
	}

	return peakBin
}

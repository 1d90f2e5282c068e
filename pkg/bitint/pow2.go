/*
Package bitint provides bit manipulation helpers for FFT sizing.

Design Principles:
- Zero Allocations: all operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Platform Aware: correct on both 32-bit and 64-bit platforms

The STI engine accepts any even FFT length, but power-of-2 lengths run the
fast radix-2 path of the FFT backend; config validation uses IsPowerOfTwo
to warn about slow sizes and NextEven to normalize odd requests.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
// Powers of 2 are preserved; zero and negative inputs return 1.
//
// The subtraction (size-1) keeps exact powers of 2 from doubling:
// bits.Len(7) = 3 so 8 maps to 1<<3 = 8, while bits.Len(8) = 4
// would map 8 to 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}

	// 64-bit platforms (where int is 64-bit)
	if ^uint(0)>>63 == 0 {
		return int(1 << (bits.Len64(uint64(size - 1))))
	}

	// 32-bit platforms
	return int(1 << (bits.Len32(uint32(size - 1))))
}

// NextEven rounds n up to the nearest even value. Zero and negative
// inputs return 2, the smallest usable FFT length.
func NextEven(n int) int {
	if n < 2 {
		return 2
	}
	return n + (n & 1)
}

// IsPowerOfTwo reports whether n is a power of 2. Powers of 2 have exactly
// one bit set, so (n & (n-1)) == 0 holds only for them.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

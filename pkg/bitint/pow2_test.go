package bitint

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
		{1025, 2048},
	}

	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNextEven(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-4, 2},
		{0, 2},
		{1, 2},
		{2, 2},
		{1023, 1024},
		{1024, 1024},
		{1025, 1026},
	}

	for _, tt := range tests {
		if got := NextEven(tt.in); got != tt.want {
			t.Errorf("NextEven(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   int
		want bool
	}{
		{-8, false},
		{0, false},
		{1, true},
		{2, true},
		{3, false},
		{1024, true},
		{1026, false},
	}

	for _, tt := range tests {
		if got := IsPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("IsPowerOfTwo(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestZeroAllocs(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		_ = NextPowerOfTwo(1000)
		_ = NextEven(1023)
		_ = IsPowerOfTwo(1024)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations, got %.1f", allocs)
	}
}

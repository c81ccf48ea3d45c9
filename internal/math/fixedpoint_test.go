package math

import (
	"math/big"
	"testing"
)

func TestDivideInt128Rounding(t *testing.T) {
	tests := []struct {
		name     string
		num      int64
		denom    int64
		mode     RoundingMode
		expected int64
	}{
		{"exact division", 100, 10, RoundHalfEven, 10},
		{"half rounds to even down", 25, 10, RoundHalfEven, 2},
		{"half rounds to even up", 35, 10, RoundHalfEven, 4},
		{"above half rounds up", 26, 10, RoundHalfEven, 3},
		{"below half rounds down", 24, 10, RoundHalfEven, 2},
		{"round down truncates", 29, 10, RoundDown, 2},
		{"round up bumps remainder", 21, 10, RoundUp, 3},
		{"round up exact stays", 20, 10, RoundUp, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DivideInt128(big.NewInt(tt.num), tt.denom, tt.mode)
			if got != tt.expected {
				t.Errorf("DivideInt128(%d, %d) = %d, want %d", tt.num, tt.denom, got, tt.expected)
			}
		})
	}
}

func TestMulDivOverflowSafety(t *testing.T) {
	// 2^40 * 2^40 overflows int64 but the int128 intermediate must not.
	a := int64(1) << 40
	got := MulDiv(a, a, a, RoundHalfEven)
	if got != a {
		t.Errorf("MulDiv(2^40, 2^40, 2^40) = %d, want %d", got, a)
	}
}

func TestMulRatio(t *testing.T) {
	if got := MulRatio(1_000_000, 800_000); got != 800_000 {
		t.Errorf("80%% of 1.0 = %d, want 800000", got)
	}
	if got := MulRatio(0, 500_000); got != 0 {
		t.Errorf("ratio of zero = %d, want 0", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(80, 100); got != 800_000 {
		t.Errorf("Ratio(80, 100) = %d, want 800000", got)
	}
	if got := Ratio(1, 0); got != 0 {
		t.Errorf("Ratio with zero denominator = %d, want 0", got)
	}
}

func TestGeometricMean(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		expected int64
	}{
		{"perfect square", 1_000_000, 1_000_000, 1_000_000},
		{"asymmetric reserves", 4_000_000, 1_000_000, 2_000_000},
		{"floor of irrational root", 2, 1, 1},
		{"zero reserve", 0, 1_000_000, 0},
		{"negative guarded", -5, 10, 0},
		{"large reserves no overflow", 1 << 50, 1 << 50, 1 << 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GeometricMean(tt.a, tt.b); got != tt.expected {
				t.Errorf("GeometricMean(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestGrowIndex(t *testing.T) {
	// 5% APR expressed per second at 1e12 scale, over one year, on the
	// initial index: expect roughly a 5% bump (simple interest window).
	const yearSeconds = 31_536_000
	ratePerSecond := int64(1585) // ~0.05e12 / yearSeconds
	idx := GrowIndex(IndexConfig.Scale, ratePerSecond, yearSeconds)

	growthPpm := Ratio(idx-IndexConfig.Scale, IndexConfig.Scale)
	if growthPpm < 49_000 || growthPpm > 51_000 {
		t.Errorf("one-year growth = %d ppm, want ~50000", growthPpm)
	}

	if got := GrowIndex(IndexConfig.Scale, 0, yearSeconds); got != IndexConfig.Scale {
		t.Errorf("zero rate moved index to %d", got)
	}
	if got := GrowIndex(IndexConfig.Scale, ratePerSecond, 0); got != IndexConfig.Scale {
		t.Errorf("zero elapsed moved index to %d", got)
	}
}

func TestGrowIndexMonotonic(t *testing.T) {
	idx := IndexConfig.Scale
	for i := 0; i < 100; i++ {
		next := GrowIndex(idx, 1585, 3600)
		if next < idx {
			t.Fatalf("index decreased: %d -> %d at step %d", idx, next, i)
		}
		idx = next
	}
}

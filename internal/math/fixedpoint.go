package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	ValueConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}          // token amounts and liquidity values
	RatioConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}          // ppm ratios (health, utilization, fees)
	IndexConfig = DecimalConfig{DecimalPrecision: 12, Scale: 1_000_000_000_000} // debt index
	RateConfig  = DecimalConfig{DecimalPrecision: 12, Scale: 1_000_000_000_000} // interest rate per second
)

// Ppm is the scale of all ratio-typed values.
const Ppm = 1_000_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// truncate
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through an int128 intermediate.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, roundingMode)
	putInt128(num)
	return result
}

// MulRatio applies a ppm-scaled ratio to a value.
func MulRatio(value, ratioPpm int64) int64 {
	return MulDiv(value, ratioPpm, Ppm, RoundHalfEven)
}

// Ratio computes numerator/denominator as a ppm value. A zero denominator
// yields zero, which callers treat as "no exposure".
func Ratio(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	return MulDiv(numerator, Ppm, denominator, RoundHalfEven)
}

// GeometricMean computes floor(sqrt(a * b)) without overflowing int64.
func GeometricMean(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	product := MultiplyInt128(a, b)
	root := getInt128()
	root.Sqrt(product)
	result := root.Int64()
	putInt128(product)
	putInt128(root)
	return result
}

// GrowIndex advances a debt index by ratePerSecond over elapsed seconds:
// index + index * rate * elapsed / RateConfig.Scale. Simple (non-compounded)
// within one accrual window; windows compound across batches.
func GrowIndex(index, ratePerSecond, elapsedSeconds int64) int64 {
	if ratePerSecond == 0 || elapsedSeconds == 0 {
		return index
	}
	rateOverWindow := MultiplyInt128(ratePerSecond, elapsedSeconds)
	growth := getInt128()
	growth.Mul(rateOverWindow, big.NewInt(index))
	delta := DivideInt128(growth, RateConfig.Scale, RoundDown)
	putInt128(rateOverWindow)
	putInt128(growth)
	return index + delta
}

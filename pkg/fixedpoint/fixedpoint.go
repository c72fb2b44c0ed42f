// Package fixedpoint implements the signed 80.48 fixed-point numeric type
// used throughout the risk engine for every monetary and weight quantity.
//
// Values are stored as an exact integer ("bits") equal to the represented
// value multiplied by 2^48, following the same scaled-big.Int technique the
// lending module uses for its ray (1e27) fixed point, generalized to a
// power-of-two scale so bit shifts replace decimal-string constants and the
// type can round-trip through a 128-bit two's-complement wire encoding.
package fixedpoint

import (
	"errors"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// FractionalBits is the number of bits below the binary point.
const FractionalBits = 48

// ErrDivideByZero is returned by checked division when the divisor is zero.
var ErrDivideByZero = errors.New("fixedpoint: division by zero")

// ErrOverflow is returned by checked arithmetic when the result would not
// fit in the signed 128-bit range backing the 80.48 format.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

var (
	scale   = new(big.Int).Lsh(big.NewInt(1), FractionalBits)
	maxBits = maxInt128()
	minBits = minInt128()
)

func maxInt128() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 127)
	return v.Sub(v, big.NewInt(1))
}

func minInt128() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 127)
	return v.Neg(v)
}

// RoundMode selects the rounding direction for an operation whose exact
// result is not representable at 2^-48 precision.
type RoundMode int

const (
	// RoundToZero truncates toward zero (Go's native big.Int.Quo behavior).
	RoundToZero RoundMode = iota
	// RoundHalfAwayFromZero rounds ties away from zero.
	RoundHalfAwayFromZero
	// RoundFloor rounds toward negative infinity.
	RoundFloor
	// RoundCeil rounds toward positive infinity.
	RoundCeil
)

// Q is a signed 80.48 fixed-point number.
type Q struct {
	bits *big.Int
}

// Zero is the additive identity.
func Zero() Q { return Q{bits: big.NewInt(0)} }

// FromInt64 builds a Q representing the given integer exactly.
func FromInt64(n int64) Q {
	return Q{bits: new(big.Int).Lsh(big.NewInt(n), FractionalBits)}
}

// FromFloat64 builds a Q approximating f, rounding to the nearest
// representable 2^-48 step.
func FromFloat64(f float64) Q {
	r := new(big.Rat).SetFloat64(f)
	if r == nil {
		if math.IsNaN(f) {
			return Zero()
		}
		if f > 0 {
			return Q{bits: new(big.Int).Set(maxBits)}
		}
		return Q{bits: new(big.Int).Set(minBits)}
	}
	return FromRat(r)
}

// FromRat builds a Q approximating r, rounding half away from zero.
func FromRat(r *big.Rat) Q {
	if r == nil {
		return Zero()
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	num := new(big.Int).Set(scaled.Num())
	den := new(big.Int).Set(scaled.Denom())
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		twice := new(big.Int).Lsh(new(big.Int).Abs(rem), 1)
		if twice.CmpAbs(den) >= 0 {
			if num.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
	}
	return Q{bits: q}
}

// FromBits reconstructs a Q from its raw scaled representation. Used when
// decoding values persisted or logged via Bits.
func FromBits(bits *big.Int) Q {
	if bits == nil {
		return Zero()
	}
	return Q{bits: new(big.Int).Set(bits)}
}

func (a Q) ensure() *big.Int {
	if a.bits == nil {
		return big.NewInt(0)
	}
	return a.bits
}

// Bits returns the raw scaled integer (value * 2^48) backing a.
func (a Q) Bits() *big.Int {
	return new(big.Int).Set(a.ensure())
}

// Uint256Bits packs the raw scaled integer into the low 128 bits of a
// uint256 word, sign-extending through bit 127, for compact binary
// serialization. pkg/eventlog does not use it; its rows store Bits() as
// decimal strings.
func (a Q) Uint256Bits() *uint256.Int {
	bits := a.ensure()
	var u uint256.Int
	if bits.Sign() < 0 {
		// two's-complement: 2^256 + bits, then mask to 128 bits and
		// sign-extend the upper 128 bits with ones.
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		mod.Add(mod, bits)
		u.SetFromBig(mod)
	} else {
		u.SetFromBig(bits)
	}
	return &u
}

// Float64 returns an approximation of a suitable for logging, never for
// further arithmetic.
func (a Q) Float64() float64 {
	r := new(big.Rat).SetFrac(a.ensure(), scale)
	f, _ := r.Float64()
	return f
}

// Sign returns -1, 0, or 1.
func (a Q) Sign() int { return a.ensure().Sign() }

// IsZero reports whether a is exactly zero.
func (a Q) IsZero() bool { return a.Sign() == 0 }

// Neg returns -a.
func (a Q) Neg() Q { return Q{bits: new(big.Int).Neg(a.ensure())} }

// Abs returns |a|.
func (a Q) Abs() Q { return Q{bits: new(big.Int).Abs(a.ensure())} }

// Cmp compares a and b: -1 if a<b, 0 if equal, 1 if a>b.
func (a Q) Cmp(b Q) int { return a.ensure().Cmp(b.ensure()) }

// LessThan reports whether a < b.
func (a Q) LessThan(b Q) bool { return a.Cmp(b) < 0 }

// GreaterThan reports whether a > b.
func (a Q) GreaterThan(b Q) bool { return a.Cmp(b) > 0 }

// Max returns the greater of a and b.
func Max(a, b Q) Q {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the lesser of a and b.
func Min(a, b Q) Q {
	if a.LessThan(b) {
		return a
	}
	return b
}

func clampToRange(bits *big.Int) (*big.Int, bool) {
	if bits.Cmp(maxBits) > 0 {
		return new(big.Int).Set(maxBits), true
	}
	if bits.Cmp(minBits) < 0 {
		return new(big.Int).Set(minBits), true
	}
	return bits, false
}

// Add returns a+b, saturating at the representable range.
func (a Q) Add(b Q) Q {
	sum := new(big.Int).Add(a.ensure(), b.ensure())
	clamped, _ := clampToRange(sum)
	return Q{bits: clamped}
}

// AddChecked returns a+b, or ErrOverflow if the sum exceeds the
// representable range.
func (a Q) AddChecked(b Q) (Q, error) {
	sum := new(big.Int).Add(a.ensure(), b.ensure())
	if _, overflowed := clampToRange(sum); overflowed {
		return Q{}, ErrOverflow
	}
	return Q{bits: sum}, nil
}

// Sub returns a-b, saturating at the representable range.
func (a Q) Sub(b Q) Q {
	return a.Add(b.Neg())
}

// SubChecked returns a-b, or ErrOverflow if the difference exceeds the
// representable range.
func (a Q) SubChecked(b Q) (Q, error) {
	return a.AddChecked(b.Neg())
}

// MulRound returns a*b rounded per mode, saturating the result.
func (a Q) MulRound(b Q, mode RoundMode) Q {
	product := new(big.Int).Mul(a.ensure(), b.ensure())
	divided := divRound(product, scale, mode)
	clamped, _ := clampToRange(divided)
	return Q{bits: clamped}
}

// Mul returns a*b truncated toward zero. Use MulRound for other rounding
// directions where the caller's rounding discipline matters (e.g. fee and
// settlement math that must never round in the protocol's favor).
func (a Q) Mul(b Q) Q { return a.MulRound(b, RoundToZero) }

// DivRound returns a/b rounded per mode. Returns ErrDivideByZero if b is
// zero.
func (a Q) DivRound(b Q, mode RoundMode) (Q, error) {
	if b.IsZero() {
		return Q{}, ErrDivideByZero
	}
	numerator := new(big.Int).Mul(a.ensure(), scale)
	divided := divRound(numerator, b.ensure(), mode)
	clamped, _ := clampToRange(divided)
	return Q{bits: clamped}, nil
}

// Div returns a/b truncated toward zero. Returns ErrDivideByZero if b is
// zero.
func (a Q) Div(b Q) (Q, error) { return a.DivRound(b, RoundToZero) }

// DivInt64 divides a by the plain integer n, truncating toward zero. n is
// assumed non-zero (callers divide by configuration constants such as a
// market's base lot size, never by caller-controlled input).
func (a Q) DivInt64(n int64) Q {
	q, err := a.Div(FromInt64(n))
	if err != nil {
		return Zero()
	}
	return q
}

// MulInt64 multiplies a by the plain integer n exactly (no rounding).
func (a Q) MulInt64(n int64) Q {
	return a.Mul(FromInt64(n))
}

// divRound divides num by den according to mode. den must be non-zero.
func divRound(num, den *big.Int, mode RoundMode) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() == 0 {
		return q
	}
	switch mode {
	case RoundToZero:
		return q
	case RoundFloor:
		if (r.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		}
		return q
	case RoundCeil:
		if (r.Sign() < 0) == (den.Sign() < 0) {
			q.Add(q, big.NewInt(1))
		}
		return q
	case RoundHalfAwayFromZero:
		twice := new(big.Int).Lsh(new(big.Int).Abs(r), 1)
		if twice.CmpAbs(new(big.Int).Abs(den)) >= 0 {
			if num.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
		return q
	default:
		return q
	}
}

// CeilToInt64 rounds a up to the nearest integer (toward +inf) and returns
// it as an int64, used when deriving discrete lot counts from continuous
// fixed-point quantities (see pkg/liquidation phase 4's transfer_for_zero).
func (a Q) CeilToInt64() int64 {
	q, r := new(big.Int).QuoRem(a.ensure(), scale, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}

// FloorToInt64 rounds a down to the nearest integer (toward -inf) and
// returns it as an int64.
func (a Q) FloorToInt64() int64 {
	q, r := new(big.Int).QuoRem(a.ensure(), scale, new(big.Int))
	if r.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q.Int64()
}

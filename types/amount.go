// Package types provides common types used across creditledger.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Every monetary amount inside creditledger is a signed int64 count of
// nano-units: 1 unit of the base currency is 10^9 nanos. Negative amounts
// reduce a workspace balance. Conversions from other scales happen only
// through the helpers in this file.
const (
	// NanosPerUnit is the number of nanos in one whole currency unit.
	NanosPerUnit int64 = 1_000_000_000

	// NanosPerMicro converts millionths of a unit into nanos.
	NanosPerMicro int64 = 1_000

	// unitDecimals is the number of fractional digits a nano amount carries.
	unitDecimals = 9

	maxNanos int64 = 1<<63 - 1
)

// ErrInvalidAmount is returned by ParseUnits for malformed decimal input.
var ErrInvalidAmount = errors.New("types: invalid amount")

// FromMicros converts an amount in millionths of a unit into nanos.
func FromMicros(micros int64) int64 { return micros * NanosPerMicro }

// FromUnits converts whole currency units into nanos.
func FromUnits(units int64) int64 { return units * NanosPerUnit }

// ToMicrosCeil converts nanos into millionths of a unit, rounding toward
// positive infinity so that a charge is never under-reported.
func ToMicrosCeil(nanos int64) int64 { return CeilDiv(nanos, NanosPerMicro) }

// CeilDiv divides num by a positive den, rounding toward positive infinity.
// It panics when den is not positive.
func CeilDiv(num, den int64) int64 {
	if den <= 0 {
		panic("types: CeilDiv with non-positive divisor")
	}
	q := num / den
	if num%den > 0 {
		q++
	}
	return q
}

// ParseUnits parses a decimal string such as "3.25" or "-0.000001" into
// nanos without going through floating point. At most nine fractional
// digits are accepted.
func ParseUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if (whole == "" && frac == "") || !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > unitDecimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, unitDecimals)
	}

	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		units = n
	}

	var nanos int64
	if frac != "" {
		padded := frac + strings.Repeat("0", unitDecimals-len(frac))
		n, err := strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		nanos = n
	}

	if units > (maxNanos-nanos)/NanosPerUnit {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}

	total := units*NanosPerUnit + nanos
	if negative {
		total = -total
	}
	return total, nil
}

// FormatUnits renders nanos as a decimal unit string with trailing zeros
// trimmed, e.g. 6_500_000 -> "0.0065" and -2*NanosPerUnit -> "-2".
func FormatUnits(nanos int64) string {
	negative := nanos < 0
	abs := uint64(nanos)
	if negative {
		abs = uint64(-(nanos + 1)) + 1
	}

	major := abs / uint64(NanosPerUnit)
	minor := abs % uint64(NanosPerUnit)

	result := strconv.FormatUint(major, 10)
	if minor != 0 {
		result += "." + strings.TrimRight(fmt.Sprintf("%09d", minor), "0")
	}
	if negative {
		return "-" + result
	}
	return result
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

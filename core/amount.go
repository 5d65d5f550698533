package core

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidAmount = errors.New("core: invalid amount")

// Amount is the engine's monetary type: an arbitrary-precision non-negative
// integer in the token's smallest unit. Ledger values arrive as decimal
// strings and never pass through float64. The zero value is usable and
// equal to AmountZero().
type Amount struct {
	value *big.Int
}

func AmountZero() Amount {
	return Amount{value: big.NewInt(0)}
}

func AmountFromInt64(value int64) (Amount, error) {
	if value < 0 {
		return Amount{}, fmt.Errorf("%w: negative value %d", ErrInvalidAmount, value)
	}
	return Amount{value: big.NewInt(value)}, nil
}

// MustAmount panics on invalid input. Test and constant-construction helper.
func MustAmount(value int64) Amount {
	amount, err := AmountFromInt64(value)
	if err != nil {
		panic(err)
	}
	return amount
}

func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, raw)
	}
	if parsed.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, raw)
	}
	return Amount{value: parsed}, nil
}

func (a Amount) big() *big.Int {
	if a.value == nil {
		return big.NewInt(0)
	}
	return a.value
}

func (a Amount) String() string {
	return a.big().String()
}

func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

func (a Amount) Cmp(other Amount) int {
	return a.big().Cmp(other.big())
}

func (a Amount) Add(other Amount) Amount {
	return Amount{value: new(big.Int).Add(a.big(), other.big())}
}

// Sub returns a - other, failing instead of going negative.
func (a Amount) Sub(other Amount) (Amount, error) {
	if a.Cmp(other) < 0 {
		return Amount{}, fmt.Errorf("%w: subtraction underflow %s - %s", ErrInvalidAmount, a, other)
	}
	return Amount{value: new(big.Int).Sub(a.big(), other.big())}, nil
}

// ScaleRatio returns a * numerator / denominator with integer floor division.
// The interest accrual and LTV computations route through here so rounding
// behavior stays in one place.
func (a Amount) ScaleRatio(numerator, denominator int64) (Amount, error) {
	if denominator <= 0 {
		return Amount{}, fmt.Errorf("%w: non-positive denominator %d", ErrInvalidAmount, denominator)
	}
	if numerator < 0 {
		return Amount{}, fmt.Errorf("%w: negative numerator %d", ErrInvalidAmount, numerator)
	}
	scaled := new(big.Int).Mul(a.big(), big.NewInt(numerator))
	scaled.Quo(scaled, big.NewInt(denominator))
	return Amount{value: scaled}, nil
}

// RatioMilli returns a/b scaled by 1000, so 1.0 == 1000. Used for health
// ratios where callers compare against threshold values in the same scale.
func RatioMilli(a, b Amount) (int64, error) {
	if b.IsZero() {
		return 0, fmt.Errorf("%w: division by zero amount", ErrInvalidAmount)
	}
	scaled := new(big.Int).Mul(a.big(), big.NewInt(1000))
	scaled.Quo(scaled, b.big())
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("%w: ratio overflow", ErrInvalidAmount)
	}
	return scaled.Int64(), nil
}

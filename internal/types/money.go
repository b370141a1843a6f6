// README: Common money value object used across modules.
package types

import (
	"math"
	"strconv"
)

// Money is an amount in minor units (cents) of the platform currency. On the
// wire it is a decimal number of major units.
type Money int64

// FromMajor converts a major-unit amount such as 12.5 to Money, rounding to
// the nearest cent.
func FromMajor(v float64) Money {
	return Money(math.Round(v * 100))
}

func MoneyFromCents(c int64) Money {
	return Money(c)
}

func (m Money) Cents() int64 {
	return int64(m)
}

func (m Money) Major() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	return strconv.FormatFloat(m.Major(), 'f', 2, 64)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, m.Major(), 'f', -1, 64), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*m = FromMajor(v)
	return nil
}

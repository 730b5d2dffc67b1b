package domain

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Price is a fixed point amount in cents. Levels are grouped on this value,
// so two prices that round to the same cent share a level.
type Price int64

const priceScale = 2

func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "parse price %q", s)
	}
	return PriceFromDecimal(d), nil
}

// PriceFromDecimal rounds half away from zero to whole cents.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Round(priceScale).Shift(priceScale).IntPart())
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -priceScale)
}

func (p Price) String() string {
	return p.Decimal().StringFixed(priceScale)
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (p *Price) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return errors.Wrap(err, "unmarshal price")
	}
	*p = PriceFromDecimal(d)
	return nil
}

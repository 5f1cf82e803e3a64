// Package pricing computes order totals. The same calculator serves the
// checkout estimate and the authoritative server totals; only the shipping
// policy differs.
package pricing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	DefaultTaxRate           = decimal.RequireFromString("0.18")
	DefaultShippingFee       = decimal.NewFromInt(25)
	DefaultFreeShippingAbove = decimal.NewFromInt(500)
)

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ShippingPolicy prices shipping from the subtotal.
type ShippingPolicy interface {
	Shipping(subtotal decimal.Decimal) decimal.Decimal
}

// ThresholdShipping is free strictly above Threshold and Fee otherwise.
// An empty cart still shows the fee.
type ThresholdShipping struct {
	Threshold decimal.Decimal
	Fee       decimal.Decimal
}

func (p ThresholdShipping) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.Threshold) {
		return decimal.Zero
	}
	return p.Fee
}

// FlatShipping always charges Fee.
type FlatShipping struct {
	Fee decimal.Decimal
}

func (p FlatShipping) Shipping(decimal.Decimal) decimal.Decimal {
	return p.Fee
}

func DefaultThresholdShipping() ThresholdShipping {
	return ThresholdShipping{Threshold: DefaultFreeShippingAbove, Fee: DefaultShippingFee}
}

func DefaultFlatShipping() FlatShipping {
	return FlatShipping{Fee: DefaultShippingFee}
}

type Calculator struct {
	TaxRate  decimal.Decimal
	Shipping ShippingPolicy
}

func NewCalculator(taxRate decimal.Decimal, shipping ShippingPolicy) *Calculator {
	return &Calculator{TaxRate: taxRate, Shipping: shipping}
}

// Calculate returns subtotal, tax rounded to 2 places, shipping and
// total = subtotal + tax + shipping.
func (c *Calculator) Calculate(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	tax := subtotal.Mul(c.TaxRate).Round(2)
	shipping := c.Shipping.Shipping(subtotal)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}

// Calculate uses the default tax rate.
func Calculate(lines []Line, policy ShippingPolicy) Totals {
	return NewCalculator(DefaultTaxRate, policy).Calculate(lines)
}

// CoercePrice parses a client supplied price. Anything that is not a
// non-negative number becomes zero.
func CoercePrice(raw any) decimal.Decimal {
	var p decimal.Decimal
	switch v := raw.(type) {
	case decimal.Decimal:
		p = v
	case float64:
		p = decimal.NewFromFloat(v)
	case int:
		p = decimal.NewFromInt(int64(v))
	case int64:
		p = decimal.NewFromInt(v)
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		p = parsed
	default:
		return decimal.Zero
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// CoerceQuantity parses a client supplied quantity. Anything that is not a
// positive whole number becomes one.
func CoerceQuantity(raw any) int {
	var q int
	switch v := raw.(type) {
	case int:
		q = v
	case int64:
		q = int(v)
	case float64:
		if v != float64(int(v)) {
			return 1
		}
		q = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 1
		}
		q = parsed
	default:
		return 1
	}
	if q <= 0 {
		return 1
	}
	return q
}

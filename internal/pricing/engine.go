package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rule is the view of a discount rule the pricing engine needs: a percentage and a
// per-line eligibility predicate.
type Rule interface {
	DiscountPercentage() decimal.Decimal
	Eligible(line Line) (bool, error)
}

// BaselineTotal sums unit cost times quantity over every line with no discount applied.
func BaselineTotal(cart Cart) (decimal.Decimal, error) {
	if err := cart.Validate(); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, line := range cart.Lines {
		total = total.Add(LineTotal(line))
	}
	return total, nil
}

// LineTotal returns unit cost times quantity.
func LineTotal(line Line) decimal.Decimal {
	return line.Item.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// DiscountedLineTotal returns the line total reduced by percentage, where percentage is in [0,100].
// The division by 100 is a decimal shift, so the result is exact.
func DiscountedLineTotal(line Line, percentage decimal.Decimal) decimal.Decimal {
	return LineTotal(line).Mul(hundred.Sub(percentage)).Shift(-2)
}

// TotalUnderRule prices the cart with rule applied to its eligible lines. Every line
// contributes exactly once, discounted or not.
func TotalUnderRule(cart Cart, rule Rule) (decimal.Decimal, error) {
	if err := cart.Validate(); err != nil {
		return decimal.Zero, err
	}
	pct := rule.DiscountPercentage()
	eligible, ineligible := decimal.Zero, decimal.Zero
	for _, line := range cart.Lines {
		ok, err := rule.Eligible(line)
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			eligible = eligible.Add(DiscountedLineTotal(line, pct))
			continue
		}
		ineligible = ineligible.Add(LineTotal(line))
	}
	return eligible.Add(ineligible), nil
}

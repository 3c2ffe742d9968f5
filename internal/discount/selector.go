package discount

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/discount-calculator/internal/pricing"
)

// NoDiscountID identifies the outcome where no rule beats the undiscounted total.
const NoDiscountID = "NoDiscount"

// Outcome is the selected rule and the cart total after applying it.
type Outcome struct {
	RuleID string          `json:"discountId"`
	Total  decimal.Decimal `json:"totalCostAfterDiscount"`
}

// Applied reports whether a rule other than the sentinel was chosen.
func (o Outcome) Applied() bool {
	return o.RuleID != NoDiscountID
}

// SelectBest prices cart under each rule independently and returns the cheapest outcome.
// The scan is seeded with the sentinel at the baseline total and only a strictly lower
// total replaces the running best, so the earliest rule wins ties and a rule that merely
// matches the baseline is not applied.
func SelectBest(cart pricing.Cart, rules []Rule) (Outcome, error) {
	baseline, err := pricing.BaselineTotal(cart)
	if err != nil {
		return Outcome{}, err
	}
	best := Outcome{RuleID: NoDiscountID, Total: baseline}
	for _, rule := range rules {
		total, err := pricing.TotalUnderRule(cart, rule)
		if err != nil {
			return Outcome{}, err
		}
		if total.LessThan(best.Total) {
			best = Outcome{RuleID: rule.ID, Total: total}
		}
	}
	return best, nil
}

// Evaluate is the pure entry point: pick the single best rule for cart.
func Evaluate(cart pricing.Cart, rules []Rule) (Outcome, error) {
	return SelectBest(cart, rules)
}

package discount

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/discount-calculator/internal/pricing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(qty int, id string, category pricing.Category, cost string) pricing.Line {
	return pricing.Line{Quantity: qty, Item: pricing.Item{ID: id, Category: category, UnitCost: dec(cost)}}
}

func cartOf(lines ...pricing.Line) pricing.Cart {
	return pricing.Cart{Lines: lines}
}

var (
	ruleABC = Rule{ID: "ABC", Percentage: dec("10"), Criteria: ByCategory{Category: pricing.CategoryClothes}}
	ruleCDE = Rule{ID: "CDE", Percentage: dec("15"), Criteria: ByMinUnitCost{Threshold: dec("100")}}
	ruleFGH = Rule{ID: "FGH", Percentage: dec("20"), Criteria: ByItemQuantity{ItemID: "123", MinQuantity: 2}}
)

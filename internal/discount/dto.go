package discount

import (
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/discount-calculator/internal/common"
	"github.com/noah-isme/discount-calculator/internal/pricing"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RuleDTO is the wire shape of a discount rule.
type RuleDTO struct {
	ID         string           `json:"id" validate:"required"`
	Kind       string           `json:"discountType" validate:"required"`
	Percentage *decimal.Decimal `json:"discountPercentage" validate:"required"`
	ItemType   *string          `json:"itemType,omitempty"`
	ItemCost   *decimal.Decimal `json:"itemCost,omitempty"`
	Quantity   *int             `json:"quantity,omitempty"`
	ItemID     *string          `json:"itemId,omitempty"`
}

// CartDTO is the wire shape of a cart submitted for evaluation.
type CartDTO struct {
	Items []CartItemDTO `json:"cartItems" validate:"required,min=1,dive"`
}

// CartItemDTO is one cart line.
type CartItemDTO struct {
	Quantity int      `json:"quantity" validate:"gt=0"`
	Item     *ItemDTO `json:"item" validate:"required"`
}

// ItemDTO describes the product on a cart line.
type ItemDTO struct {
	ID       string           `json:"id" validate:"required"`
	Category string           `json:"itemType" validate:"required"`
	Cost     *decimal.Decimal `json:"cost" validate:"required"`
}

func invalidRule(reason string, details map[string]string) error {
	return common.NewValidationError("invalid discount rule", fmt.Errorf("%w: %s", ErrInvalidRule, reason), details)
}

func invalidCart(reason string, details map[string]string) error {
	return common.NewValidationError("invalid cart", fmt.Errorf("%w: %s", pricing.ErrInvalidCart, reason), details)
}

// RuleFromDTO validates dto and builds the matching Rule. Parameters that do not belong to
// the rule's kind are rejected.
func RuleFromDTO(dto RuleDTO) (Rule, error) {
	if err := validate.Struct(dto); err != nil {
		return Rule{}, invalidRule(err.Error(), common.FieldErrors(err))
	}
	kind, err := ParseKind(dto.Kind)
	if err != nil {
		return Rule{}, invalidRule(err.Error(), map[string]string{"discountType": "oneof"})
	}
	pct := *dto.Percentage
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return Rule{}, invalidRule("percentage outside [0,100]", map[string]string{"discountPercentage": "range"})
	}

	extra := map[string]string{}
	var criteria Criteria
	switch kind {
	case KindByCategory:
		if dto.ItemType == nil || strings.TrimSpace(*dto.ItemType) == "" {
			return Rule{}, invalidRule("itemType is required", map[string]string{"itemType": "required"})
		}
		category, err := pricing.ParseCategory(*dto.ItemType)
		if err != nil {
			return Rule{}, invalidRule(err.Error(), map[string]string{"itemType": "oneof"})
		}
		criteria = ByCategory{Category: category}
		markExtra(extra, "itemCost", dto.ItemCost != nil)
		markExtra(extra, "quantity", dto.Quantity != nil)
		markExtra(extra, "itemId", dto.ItemID != nil)
	case KindByMinUnitCost:
		if dto.ItemCost == nil {
			return Rule{}, invalidRule("itemCost is required", map[string]string{"itemCost": "required"})
		}
		if dto.ItemCost.IsNegative() {
			return Rule{}, invalidRule("itemCost must not be negative", map[string]string{"itemCost": "gte"})
		}
		criteria = ByMinUnitCost{Threshold: *dto.ItemCost}
		markExtra(extra, "itemType", dto.ItemType != nil)
		markExtra(extra, "quantity", dto.Quantity != nil)
		markExtra(extra, "itemId", dto.ItemID != nil)
	case KindByItemQuantity:
		missing := map[string]string{}
		if dto.ItemID == nil || strings.TrimSpace(*dto.ItemID) == "" {
			missing["itemId"] = "required"
		}
		if dto.Quantity == nil {
			missing["quantity"] = "required"
		} else if *dto.Quantity < 0 {
			missing["quantity"] = "gte"
		} else if *dto.Quantity > MaxMinQuantity {
			missing["quantity"] = "lte"
		}
		if len(missing) > 0 {
			return Rule{}, invalidRule(fmt.Sprintf("itemId and a quantity between 0 and %d are required", MaxMinQuantity), missing)
		}
		criteria = ByItemQuantity{ItemID: strings.TrimSpace(*dto.ItemID), MinQuantity: *dto.Quantity}
		markExtra(extra, "itemType", dto.ItemType != nil)
		markExtra(extra, "itemCost", dto.ItemCost != nil)
	}
	if len(extra) > 0 {
		return Rule{}, invalidRule(fmt.Sprintf("parameters not used by %s", kind), extra)
	}

	rule := Rule{ID: strings.TrimSpace(dto.ID), Percentage: pct, Criteria: criteria}
	if err := rule.Validate(); err != nil {
		return Rule{}, invalidRule(err.Error(), nil)
	}
	return rule, nil
}

func markExtra(extra map[string]string, field string, present bool) {
	if present {
		extra[field] = "excluded"
	}
}

// ToDTO renders r in its wire shape. Only the parameters of r's kind are set.
func ToDTO(r Rule) RuleDTO {
	pct := r.Percentage
	dto := RuleDTO{ID: r.ID, Kind: string(r.Kind()), Percentage: &pct}
	switch c := r.Criteria.(type) {
	case ByCategory:
		category := string(c.Category)
		dto.ItemType = &category
	case ByMinUnitCost:
		threshold := c.Threshold
		dto.ItemCost = &threshold
	case ByItemQuantity:
		itemID, qty := c.ItemID, c.MinQuantity
		dto.ItemID = &itemID
		dto.Quantity = &qty
	}
	return dto
}

// ToDTOs renders rules in order.
func ToDTOs(rules []Rule) []RuleDTO {
	out := make([]RuleDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, ToDTO(r))
	}
	return out
}

// CartFromDTO validates dto and builds the pricing cart.
func CartFromDTO(dto CartDTO) (pricing.Cart, error) {
	if err := validate.Struct(dto); err != nil {
		return pricing.Cart{}, invalidCart(err.Error(), common.FieldErrors(err))
	}
	cart := pricing.Cart{Lines: make([]pricing.Line, 0, len(dto.Items))}
	for i, line := range dto.Items {
		field := fmt.Sprintf("cartItems[%d].item", i)
		category, err := pricing.ParseCategory(line.Item.Category)
		if err != nil {
			return pricing.Cart{}, invalidCart(err.Error(), map[string]string{field + ".itemType": "oneof"})
		}
		if line.Item.Cost.IsNegative() {
			return pricing.Cart{}, invalidCart("item cost must not be negative", map[string]string{field + ".cost": "gte"})
		}
		cart.Lines = append(cart.Lines, pricing.Line{
			Quantity: line.Quantity,
			Item: pricing.Item{
				ID:       strings.TrimSpace(line.Item.ID),
				Category: category,
				UnitCost: *line.Item.Cost,
			},
		})
	}
	if err := cart.Validate(); err != nil {
		return pricing.Cart{}, common.NewValidationError("invalid cart", err, nil)
	}
	return cart, nil
}

package discount

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/discount-calculator/internal/pricing"
)

var (
	// ErrInvalidRule is returned when a rule is missing a required parameter or is out of range.
	ErrInvalidRule = errors.New("discount: invalid rule")
	// ErrUnknownKind signals a rule whose kind is outside the closed set. It indicates a
	// construction bug and is never tolerated.
	ErrUnknownKind = errors.New("discount: unknown discount kind")
)

// Kind tags the eligibility criteria of a rule.
type Kind string

const (
	KindByCategory     Kind = "BY_CATEGORY"
	KindByMinUnitCost  Kind = "BY_MIN_UNIT_COST"
	KindByItemQuantity Kind = "BY_ITEM_QUANTITY"
)

// names used by the first version of the service, still accepted on input
var legacyKinds = map[string]Kind{
	"ITEM_TYPE": KindByCategory,
	"ITEM_COST": KindByMinUnitCost,
	"QUANTITY":  KindByItemQuantity,
}

// ParseKind resolves a kind name, accepting legacy aliases.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch Kind(normalized) {
	case KindByCategory, KindByMinUnitCost, KindByItemQuantity:
		return Kind(normalized), nil
	}
	if k, ok := legacyKinds[normalized]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
}

// Criteria is the kind-specific part of a rule. The set of implementations is closed.
type Criteria interface {
	Kind() Kind
	validate() error
}

// ByCategory discounts every line whose item is in Category.
type ByCategory struct {
	Category pricing.Category
}

// ByMinUnitCost discounts every line whose unit cost is strictly above Threshold.
type ByMinUnitCost struct {
	Threshold decimal.Decimal
}

// ByItemQuantity discounts the line for ItemID once at least MinQuantity units are bought.
type ByItemQuantity struct {
	ItemID      string
	MinQuantity int
}

func (ByCategory) Kind() Kind     { return KindByCategory }
func (ByMinUnitCost) Kind() Kind  { return KindByMinUnitCost }
func (ByItemQuantity) Kind() Kind { return KindByItemQuantity }

func (c ByCategory) validate() error {
	if !c.Category.Valid() {
		return fmt.Errorf("category %q is not supported", c.Category)
	}
	return nil
}

func (c ByMinUnitCost) validate() error {
	if c.Threshold.IsNegative() {
		return errors.New("cost threshold must not be negative")
	}
	return nil
}

// MaxMinQuantity bounds ByItemQuantity thresholds to what the rules table stores.
const MaxMinQuantity = math.MaxInt32

func (c ByItemQuantity) validate() error {
	if strings.TrimSpace(c.ItemID) == "" {
		return errors.New("item id is required")
	}
	if c.MinQuantity < 0 {
		return errors.New("minimum quantity must not be negative")
	}
	if c.MinQuantity > MaxMinQuantity {
		return fmt.Errorf("minimum quantity must not exceed %d", MaxMinQuantity)
	}
	return nil
}

// Rule is a stored, independently evaluated discount definition.
type Rule struct {
	ID         string
	Percentage decimal.Decimal
	Criteria   Criteria
}

// Kind returns the tag of the rule's criteria, or "" when criteria is unset.
func (r Rule) Kind() Kind {
	if r.Criteria == nil {
		return ""
	}
	return r.Criteria.Kind()
}

// Validate enforces that the rule can be persisted and evaluated.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if r.Percentage.LessThan(decimal.Zero) || r.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: percentage %s outside [0,100]", ErrInvalidRule, r.Percentage)
	}
	if r.Criteria == nil {
		return fmt.Errorf("%w: criteria are required", ErrInvalidRule)
	}
	if err := r.Criteria.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// DiscountPercentage implements pricing.Rule.
func (r Rule) DiscountPercentage() decimal.Decimal {
	return r.Percentage
}

// Eligible implements pricing.Rule.
func (r Rule) Eligible(line pricing.Line) (bool, error) {
	switch c := r.Criteria.(type) {
	case ByCategory:
		return line.Item.Category == c.Category, nil
	case ByMinUnitCost:
		return line.Item.UnitCost.GreaterThan(c.Threshold), nil
	case ByItemQuantity:
		return line.Item.ID == c.ItemID && line.Quantity >= c.MinQuantity, nil
	default:
		return false, fmt.Errorf("%w: rule %s has criteria %T", ErrUnknownKind, r.ID, r.Criteria)
	}
}

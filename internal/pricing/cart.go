package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidCart is returned when a cart violates its structural invariants.
var ErrInvalidCart = errors.New("pricing: invalid cart")

// ErrUnknownCategory is returned when a category name is outside the supported set.
var ErrUnknownCategory = errors.New("pricing: unknown category")

// Category is the enumerated type of an item.
type Category string

const (
	CategoryClothes     Category = "CLOTHES"
	CategoryElectronics Category = "ELECTRONICS"
	CategoryFurniture   Category = "FURNITURE"
	CategoryGrocery     Category = "GROCERY"
	CategoryBooks       Category = "BOOKS"
	CategoryToys        Category = "TOYS"
)

var categories = []Category{
	CategoryClothes,
	CategoryElectronics,
	CategoryFurniture,
	CategoryGrocery,
	CategoryBooks,
	CategoryToys,
}

// Categories lists every supported category.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(value string) (Category, error) {
	normalized := Category(strings.ToUpper(strings.TrimSpace(value)))
	for _, c := range categories {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if known == c {
			return true
		}
	}
	return false
}

// Item is a purchasable product as seen by the pricing engine.
type Item struct {
	ID       string
	Category Category
	UnitCost decimal.Decimal
}

// Validate checks the item is structurally usable for pricing.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return errors.New("item id is required")
	}
	if !it.Category.Valid() {
		return fmt.Errorf("item %s: %w: %q", it.ID, ErrUnknownCategory, it.Category)
	}
	if it.UnitCost.IsNegative() {
		return fmt.Errorf("item %s: unit cost must not be negative", it.ID)
	}
	return nil
}

// Line pairs a quantity with an item.
type Line struct {
	Quantity int
	Item     Item
}

// Cart is an ordered collection of lines.
type Cart struct {
	Lines []Line
}

// Validate verifies the cart is non-empty and every line is well formed.
func (c Cart) Validate() error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("%w: cart has no lines", ErrInvalidCart)
	}
	for i, line := range c.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidCart, i)
		}
		if err := line.Item.Validate(); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidCart, i, err)
		}
	}
	return nil
}

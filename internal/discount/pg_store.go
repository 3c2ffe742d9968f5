package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/discount-calculator/internal/pricing"
)

// DB captures the pgx methods used by PGStore. *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps rules in the discount_rules table. Numeric columns cross the driver as
// text so amounts stay exact.
type PGStore struct {
	DB DB
}

const selectRuleColumns = `SELECT id, kind, percentage::text, item_type, item_cost::text, min_quantity, item_id FROM discount_rules`

const upsertRuleSQL = `INSERT INTO discount_rules (id, kind, percentage, item_type, item_cost, min_quantity, item_id)
VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  kind = EXCLUDED.kind,
  percentage = EXCLUDED.percentage,
  item_type = EXCLUDED.item_type,
  item_cost = EXCLUDED.item_cost,
  min_quantity = EXCLUDED.min_quantity,
  item_id = EXCLUDED.item_id,
  updated_at = now()`

type ruleRow struct {
	ID          string
	Kind        string
	Percentage  string
	ItemType    *string
	ItemCost    *string
	MinQuantity *int32
	ItemID      *string
}

func scanRule(row pgx.Row) (Rule, error) {
	var r ruleRow
	if err := row.Scan(&r.ID, &r.Kind, &r.Percentage, &r.ItemType, &r.ItemCost, &r.MinQuantity, &r.ItemID); err != nil {
		return Rule{}, err
	}
	return r.toRule()
}

func (r ruleRow) toRule() (Rule, error) {
	pct, err := decimal.NewFromString(r.Percentage)
	if err != nil {
		return Rule{}, fmt.Errorf("discount: rule %s percentage: %w", r.ID, err)
	}
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Rule{}, fmt.Errorf("discount: rule %s: %w", r.ID, err)
	}
	rule := Rule{ID: r.ID, Percentage: pct}
	switch kind {
	case KindByCategory:
		if r.ItemType == nil {
			return Rule{}, fmt.Errorf("%w: rule %s has no item_type", ErrInvalidRule, r.ID)
		}
		category, err := pricing.ParseCategory(*r.ItemType)
		if err != nil {
			return Rule{}, fmt.Errorf("discount: rule %s: %w", r.ID, err)
		}
		rule.Criteria = ByCategory{Category: category}
	case KindByMinUnitCost:
		if r.ItemCost == nil {
			return Rule{}, fmt.Errorf("%w: rule %s has no item_cost", ErrInvalidRule, r.ID)
		}
		threshold, err := decimal.NewFromString(*r.ItemCost)
		if err != nil {
			return Rule{}, fmt.Errorf("discount: rule %s item_cost: %w", r.ID, err)
		}
		rule.Criteria = ByMinUnitCost{Threshold: threshold}
	case KindByItemQuantity:
		if r.ItemID == nil || r.MinQuantity == nil {
			return Rule{}, fmt.Errorf("%w: rule %s has no item_id or min_quantity", ErrInvalidRule, r.ID)
		}
		rule.Criteria = ByItemQuantity{ItemID: *r.ItemID, MinQuantity: int(*r.MinQuantity)}
	}
	return rule, nil
}

func rowFromRule(rule Rule) (ruleRow, error) {
	row := ruleRow{ID: rule.ID, Kind: string(rule.Kind()), Percentage: rule.Percentage.String()}
	switch c := rule.Criteria.(type) {
	case ByCategory:
		category := string(c.Category)
		row.ItemType = &category
	case ByMinUnitCost:
		threshold := c.Threshold.String()
		row.ItemCost = &threshold
	case ByItemQuantity:
		if c.MinQuantity < 0 || c.MinQuantity > MaxMinQuantity {
			return ruleRow{}, fmt.Errorf("%w: rule %s minimum quantity %d out of range", ErrInvalidRule, rule.ID, c.MinQuantity)
		}
		itemID := c.ItemID
		qty := int32(c.MinQuantity)
		row.ItemID = &itemID
		row.MinQuantity = &qty
	default:
		return ruleRow{}, fmt.Errorf("%w: rule %s has criteria %T", ErrUnknownKind, rule.ID, rule.Criteria)
	}
	return row, nil
}

func (s *PGStore) FindAll(ctx context.Context) ([]Rule, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("discount: postgres store not configured")
	}
	rows, err := s.DB.Query(ctx, selectRuleColumns+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *PGStore) FindByID(ctx context.Context, id string) (Rule, error) {
	if s == nil || s.DB == nil {
		return Rule{}, errors.New("discount: postgres store not configured")
	}
	rule, err := scanRule(s.DB.QueryRow(ctx, selectRuleColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return rule, err
}

func (s *PGStore) Save(ctx context.Context, rule Rule) (Rule, error) {
	if s == nil || s.DB == nil {
		return Rule{}, errors.New("discount: postgres store not configured")
	}
	row, err := rowFromRule(rule)
	if err != nil {
		return Rule{}, err
	}
	if _, err := s.DB.Exec(ctx, upsertRuleSQL, row.ID, row.Kind, row.Percentage, row.ItemType, row.ItemCost, row.MinQuantity, row.ItemID); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func (s *PGStore) DeleteByID(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("discount: postgres store not configured")
	}
	_, err := s.DB.Exec(ctx, `DELETE FROM discount_rules WHERE id = $1`, id)
	return err
}

package discount

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/discount-calculator/internal/common"
	"github.com/noah-isme/discount-calculator/internal/pricing"
)

func decodeRule(t *testing.T, body string) RuleDTO {
	t.Helper()
	var dto RuleDTO
	require.NoError(t, json.Unmarshal([]byte(body), &dto))
	return dto
}

func requireValidationError(t *testing.T, err error, field, tag string) {
	t.Helper()
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	if field != "" {
		details, ok := appErr.Details.(map[string]string)
		require.True(t, ok, "details %#v", appErr.Details)
		require.Equal(t, tag, details[field], "details %#v", details)
	}
}

func TestRuleDTORoundTrip(t *testing.T) {
	for _, rule := range []Rule{ruleABC, ruleCDE, ruleFGH} {
		back, err := RuleFromDTO(ToDTO(rule))
		require.NoError(t, err, rule.ID)
		require.Equal(t, rule.ID, back.ID)
		require.True(t, rule.Percentage.Equal(back.Percentage))
		require.Equal(t, rule.Kind(), back.Kind())
		switch want := rule.Criteria.(type) {
		case ByMinUnitCost:
			got := back.Criteria.(ByMinUnitCost)
			require.True(t, want.Threshold.Equal(got.Threshold))
		default:
			require.Equal(t, rule.Criteria, back.Criteria)
		}
	}
}

func TestRuleDTOJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ToDTO(ruleFGH))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"FGH","discountType":"BY_ITEM_QUANTITY","discountPercentage":"20","quantity":2,"itemId":"123"}`, string(data))

	rule, err := RuleFromDTO(decodeRule(t, string(data)))
	require.NoError(t, err)
	require.Equal(t, ByItemQuantity{ItemID: "123", MinQuantity: 2}, rule.Criteria)
}

func TestRuleFromDTOLegacyPayload(t *testing.T) {
	rule, err := RuleFromDTO(decodeRule(t, `{"id":"CDE","discountType":"ITEM_COST","discountPercentage":15,"itemCost":100.00}`))
	require.NoError(t, err)
	require.Equal(t, KindByMinUnitCost, rule.Kind())
	require.True(t, rule.Criteria.(ByMinUnitCost).Threshold.Equal(dec("100")))

	rule, err = RuleFromDTO(decodeRule(t, `{"id":"ABC","discountType":"ITEM_TYPE","discountPercentage":10,"itemType":"clothes"}`))
	require.NoError(t, err)
	require.Equal(t, ByCategory{Category: pricing.CategoryClothes}, rule.Criteria)
}

func TestRuleFromDTOValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
		tag   string
	}{
		{"missing id", `{"discountType":"BY_CATEGORY","discountPercentage":10,"itemType":"CLOTHES"}`, "id", "required"},
		{"missing percentage", `{"id":"x","discountType":"BY_CATEGORY","itemType":"CLOTHES"}`, "discountPercentage", "required"},
		{"missing kind", `{"id":"x","discountPercentage":10,"itemType":"CLOTHES"}`, "discountType", "required"},
		{"unknown kind", `{"id":"x","discountType":"BOGO","discountPercentage":10}`, "discountType", "oneof"},
		{"percentage above range", `{"id":"x","discountType":"BY_CATEGORY","discountPercentage":101,"itemType":"CLOTHES"}`, "discountPercentage", "range"},
		{"negative percentage", `{"id":"x","discountType":"BY_CATEGORY","discountPercentage":-1,"itemType":"CLOTHES"}`, "discountPercentage", "range"},
		{"category rule without category", `{"id":"x","discountType":"BY_CATEGORY","discountPercentage":10}`, "itemType", "required"},
		{"unknown category", `{"id":"x","discountType":"BY_CATEGORY","discountPercentage":10,"itemType":"PETS"}`, "itemType", "oneof"},
		{"cost rule without cost", `{"id":"x","discountType":"BY_MIN_UNIT_COST","discountPercentage":10}`, "itemCost", "required"},
		{"negative cost", `{"id":"x","discountType":"BY_MIN_UNIT_COST","discountPercentage":10,"itemCost":-5}`, "itemCost", "gte"},
		{"quantity rule without item", `{"id":"x","discountType":"BY_ITEM_QUANTITY","discountPercentage":10,"quantity":2}`, "itemId", "required"},
		{"quantity rule without quantity", `{"id":"x","discountType":"BY_ITEM_QUANTITY","discountPercentage":10,"itemId":"1"}`, "quantity", "required"},
		{"negative quantity", `{"id":"x","discountType":"BY_ITEM_QUANTITY","discountPercentage":10,"itemId":"1","quantity":-1}`, "quantity", "gte"},
		{"quantity beyond int32", `{"id":"x","discountType":"BY_ITEM_QUANTITY","discountPercentage":10,"itemId":"1","quantity":2147483648}`, "quantity", "lte"},
		{"foreign parameter", `{"id":"x","discountType":"BY_CATEGORY","discountPercentage":10,"itemType":"CLOTHES","quantity":3}`, "quantity", "excluded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RuleFromDTO(decodeRule(t, tc.body))
			requireValidationError(t, err, tc.field, tc.tag)
			require.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestCartFromDTO(t *testing.T) {
	var dto CartDTO
	require.NoError(t, json.Unmarshal([]byte(`{"cartItems":[
		{"quantity":1,"item":{"id":"123","itemType":"CLOTHES","cost":50}},
		{"quantity":2,"item":{"id":"456","itemType":"electronics","cost":"300.10"}}
	]}`), &dto))
	cart, err := CartFromDTO(dto)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	require.Equal(t, pricing.CategoryElectronics, cart.Lines[1].Item.Category)
	require.True(t, cart.Lines[1].Item.UnitCost.Equal(dec("300.10")))

	total, err := pricing.BaselineTotal(cart)
	require.NoError(t, err)
	require.True(t, total.Equal(dec("650.2")))
}

func TestCartFromDTOValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
		tag   string
	}{
		{"missing items", `{}`, "cartItems", "required"},
		{"empty items", `{"cartItems":[]}`, "cartItems", "min"},
		{"zero quantity", `{"cartItems":[{"quantity":0,"item":{"id":"1","itemType":"TOYS","cost":1}}]}`, "cartItems[0].quantity", "gt"},
		{"missing item", `{"cartItems":[{"quantity":1}]}`, "cartItems[0].item", "required"},
		{"missing item id", `{"cartItems":[{"quantity":1,"item":{"itemType":"TOYS","cost":1}}]}`, "cartItems[0].item.id", "required"},
		{"missing cost", `{"cartItems":[{"quantity":1,"item":{"id":"1","itemType":"TOYS"}}]}`, "cartItems[0].item.cost", "required"},
		{"unknown category", `{"cartItems":[{"quantity":1,"item":{"id":"1","itemType":"PETS","cost":1}}]}`, "cartItems[0].item.itemType", "oneof"},
		{"negative cost", `{"cartItems":[{"quantity":1,"item":{"id":"1","itemType":"TOYS","cost":-1}}]}`, "cartItems[0].item.cost", "gte"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var dto CartDTO
			require.NoError(t, json.Unmarshal([]byte(tc.body), &dto))
			_, err := CartFromDTO(dto)
			requireValidationError(t, err, tc.field, tc.tag)
			require.ErrorIs(t, err, pricing.ErrInvalidCart)
		})
	}
}

package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/discount-calculator/internal/auth"
)

const rulesJSON = `[
  {"id":"ABC","discountType":"BY_CATEGORY","discountPercentage":10,"itemType":"CLOTHES"},
  {"id":"CDE","discountType":"BY_MIN_UNIT_COST","discountPercentage":15,"itemCost":100},
  {"id":"FGH","discountType":"BY_ITEM_QUANTITY","discountPercentage":20,"quantity":2,"itemId":"123"}
]`

const cartJSON = `{"cartItems":[
  {"quantity":1,"item":{"id":"1","itemType":"CLOTHES","cost":50}},
  {"quantity":1,"item":{"id":"2","itemType":"ELECTRONICS","cost":300}}
]}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEvaluatePicksBestRule(t *testing.T) {
	out, err := run(t, "evaluate",
		"--cart", writeFile(t, "cart.json", cartJSON),
		"--rules", writeFile(t, "rules.json", rulesJSON))
	require.NoError(t, err)

	var outcome struct {
		DiscountID string          `json:"discountId"`
		Total      decimal.Decimal `json:"totalCostAfterDiscount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	require.Equal(t, "CDE", outcome.DiscountID)
	require.True(t, outcome.Total.Equal(decimal.NewFromInt(305)), outcome.Total.String())
}

func TestEvaluateWithoutRules(t *testing.T) {
	out, err := run(t, "evaluate", "--cart", writeFile(t, "cart.json", cartJSON))
	require.NoError(t, err)
	require.Contains(t, out, `"discountId": "NoDiscount"`)
}

func TestEvaluateRejectsInvalidInput(t *testing.T) {
	_, err := run(t, "evaluate", "--cart", writeFile(t, "cart.json", `{"cartItems":[]}`))
	require.Error(t, err)

	badRule := `[{"id":"X","discountType":"BY_CATEGORY","discountPercentage":150,"itemType":"CLOTHES"}]`
	_, err = run(t, "evaluate",
		"--cart", writeFile(t, "cart.json", cartJSON),
		"--rules", writeFile(t, "rules.json", badRule))
	require.ErrorContains(t, err, "rule 0")

	_, err = run(t, "evaluate")
	require.Error(t, err)
}

func TestTokenIsAcceptedByVerifier(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	out, err := run(t, "token", "--subject", "ops", "--issuer", "discounts")
	require.NoError(t, err)

	subject, err := auth.NewAdminVerifier("s3cret", "discounts").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "ops", subject)
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	_, err := run(t, "token")
	require.ErrorContains(t, err, "secret not set")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "migrate", "up")
	require.ErrorContains(t, err, "database url not set")
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/discount-calculator/internal/discount"
)

func evaluateCmd() *cobra.Command {
	var cartPath, rulesPath string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Pick the best discount for a cart",
		Long: "Reads a cart in the /best request format and a JSON array of rules in the\n" +
			"create request format, then prints the winning discount id and total.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cartDTO discount.CartDTO
			if err := decodeFile(cartPath, &cartDTO); err != nil {
				return fmt.Errorf("read cart: %w", err)
			}
			var ruleDTOs []discount.RuleDTO
			if rulesPath != "" {
				if err := decodeFile(rulesPath, &ruleDTOs); err != nil {
					return fmt.Errorf("read rules: %w", err)
				}
			}

			cart, err := discount.CartFromDTO(cartDTO)
			if err != nil {
				return err
			}
			rules := make([]discount.Rule, 0, len(ruleDTOs))
			for i, dto := range ruleDTOs {
				rule, err := discount.RuleFromDTO(dto)
				if err != nil {
					return fmt.Errorf("rule %d: %w", i, err)
				}
				rules = append(rules, rule)
			}

			outcome, err := discount.Evaluate(cart, rules)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}
	cmd.Flags().StringVar(&cartPath, "cart", "", "path to the cart JSON (- for stdin)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to a JSON array of rules")
	_ = cmd.MarkFlagRequired("cart")
	return cmd
}

func decodeFile(path string, dst any) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

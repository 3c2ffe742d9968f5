package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/discount-calculator/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		secret  string
		issuer  string
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for rule management",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = envOr("ADMIN_JWT_SECRET", "")
			}
			if issuer == "" {
				issuer = envOr("ADMIN_JWT_ISSUER", "")
			}
			v := auth.NewAdminVerifier(secret, issuer)
			if v == nil {
				return errors.New("admin jwt secret not set")
			}
			token, err := v.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default $ADMIN_JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (default $ADMIN_JWT_ISSUER)")
	cmd.Flags().StringVar(&subject, "subject", "discountctl", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.DefaultAdminRole}, "roles to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

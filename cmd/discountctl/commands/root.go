// Package commands implements the discountctl command tree.
package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Execute runs discountctl against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree. Output goes to the command's configured writer.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "discountctl",
		Short:         "Evaluate carts and manage the discount rule schema",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
	}
	root.AddCommand(evaluateCmd(), migrateCmd(), tokenCmd())
	return root
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

package main

import (
	"os"

	"github.com/noah-isme/discount-calculator/cmd/discountctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

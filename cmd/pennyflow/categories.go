package main

import (
	"github.com/pennyflow/pennyflow/internal/schema"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the canonical expense categories",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, category := range schema.CanonicalCategories() {
				cmd.Println(category)
			}
		},
	}
}

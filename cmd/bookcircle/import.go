package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import ISBN...",
		Short: "Add books to the catalog by ISBN",
		Long: `Looks each ISBN up in the configured bibliographic sources and saves the
merged record. ISBNs already in the catalog are printed without any
external lookup.`,
		Example: `  bookcircle import 978-0-441-01359-3 0441478123`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			var failed []string
			for _, isbn := range args {
				book, err := a.importer.Import(cmd.Context(), isbn)
				if err != nil {
					a.logger.Error("Import failed", "isbn", isbn, "err", err)
					failed = append(failed, isbn)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", book.ISBN, book.ID, book.Title)
			}
			if len(failed) > 0 {
				return fmt.Errorf("could not import %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

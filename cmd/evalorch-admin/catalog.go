package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/target/evalorch/internal/catalog"
)

func newCatalogCmd(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the evaluation catalog",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a catalog file, then print its categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = cmdCtx.Config.Evaluation.CatalogPath
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}
			source := path
			if source == "" {
				source = "embedded default"
			}
			if err := writef(cmd.OutOrStdout(), "catalog %s is valid: %d categories, %d metrics, %d models\n",
				source, len(cat.Categories()), len(cat.Metrics()), len(cat.Models())); err != nil {
				return err
			}
			return renderCategories(cmd.OutOrStdout(), cat.Categories())
		},
	}
	validate.Flags().StringVar(&file, "file", "", "catalog YAML file (defaults to EVAL_CATALOG_PATH or the embedded catalog)")

	cmd.AddCommand(validate)
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("load embedded catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

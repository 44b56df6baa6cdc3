package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/autocomplete"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/config"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/stores"
)

func newAutocompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autocomplete",
		Short: "Maintain the unified search-box index",
	}
	cmd.AddCommand(newAutocompleteBuildCmd())
	return cmd
}

func newAutocompleteBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "(Re)build the on-disk autocomplete database from sites, genes, and phenotypes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutocompleteBuild()
		},
	}
}

func runAutocompleteBuild() error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	p := cfg.Paths()

	phenoStore, err := stores.LoadPhenoStore(p.PhenotypesJSON())
	if err != nil {
		return fmt.Errorf("loading phenotypes: %w", err)
	}
	geneRegions, err := stores.LoadGeneRegions(p.GenesBED(cfg.HGBuildNumber))
	if err != nil {
		return fmt.Errorf("loading gene regions: %w", err)
	}

	if err := autocomplete.Build(autocomplete.BuildOptions{
		DBPath:       p.AutocompleteDB(),
		SitesTSVGzip: p.SitesTSVGzip(),
		GeneRegions:  geneRegions,
		PhenoNames:   phenoStore.AllPhenoNames(),
	}); err != nil {
		return fmt.Errorf("building autocomplete index: %w", err)
	}
	fmt.Printf("built autocomplete index at %s\n", p.AutocompleteDB())
	return nil
}

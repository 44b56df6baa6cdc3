package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/api"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/autocomplete"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/config"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/gwasmissing"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/manhattan"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/phewas"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/query"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/stores"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				viper.Set("host", host)
			}
			if port != 0 {
				viper.Set("port", port)
			}
			return runServe()
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "override the configured bind host")
	cmd.Flags().IntVar(&port, "port", 0, "override the configured bind port")
	return cmd
}

// runServe loads configuration, opens every store the query facade needs,
// and blocks serving HTTP until an interrupt or terminate signal arrives.
// Every failure in this function is a startup failure: none of it runs
// again once the server is accepting requests.
func runServe() error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if h := viper.GetString("host"); h != "" {
		cfg.Host = h
	}
	if p := viper.GetInt("port"); p != 0 {
		cfg.Port = p
	}

	p := cfg.Paths()

	phenoStore, err := stores.LoadPhenoStore(p.PhenotypesJSON())
	if err != nil {
		return fmt.Errorf("loading phenotypes: %w", err)
	}
	tophitsStore, err := stores.LoadTophitsStore(p.TopHitsJSON())
	if err != nil {
		return fmt.Errorf("loading top hits: %w", err)
	}
	geneRegions, err := stores.LoadGeneRegions(p.GenesBED(cfg.HGBuildNumber))
	if err != nil {
		return fmt.Errorf("loading gene regions: %w", err)
	}
	geneStore, err := stores.OpenGeneStore(p.GeneAssociationsSQLite(), geneRegions)
	if err != nil {
		return fmt.Errorf("opening gene store: %w", err)
	}
	defer geneStore.Close()

	variantStore, err := stores.OpenVariantStore(p.VariantsDB(), p.AutocompleteDB())
	if err != nil {
		return fmt.Errorf("opening variant store: %w", err)
	}
	defer variantStore.Close()

	log.Printf("building autocomplete index from %s", p.AutocompleteDB())
	if err := autocomplete.Build(autocomplete.BuildOptions{
		DBPath:       p.AutocompleteDB(),
		SitesTSVGzip: p.SitesTSVGzip(),
		GeneRegions:  geneRegions,
		PhenoNames:   phenoStore.AllPhenoNames(),
	}); err != nil {
		return fmt.Errorf("building autocomplete index: %w", err)
	}
	autocompleteIndex, err := autocomplete.Open(p.AutocompleteDB())
	if err != nil {
		return fmt.Errorf("opening autocomplete index: %w", err)
	}
	defer autocompleteIndex.Close()

	descriptors, err := phewas.LoadDescriptorIndex(p.PhenotypesJSON())
	if err != nil {
		return fmt.Errorf("loading phenotype descriptors: %w", err)
	}
	universe := phewas.BuildUniverse(descriptors)

	facade := &query.Facade{
		Paths:             p,
		Phenos:            phenoStore,
		Tophits:           tophitsStore,
		Genes:             geneStore,
		Variants:          variantStore,
		AutocompleteIndex: autocompleteIndex,
		MissingFetcher:    gwasmissing.NewFetcher(p.GwasMissingDir(), 0, cfg.PvalIsNegLog10),
		Descriptors:       descriptors,
		Universe:          universe,
		ManhattanParams: manhattan.Params{
			PeakPvalThr:    cfg.Manhattan.PeakPvalThreshold,
			PeakSprawlDist: cfg.Manhattan.PeakSprawlDist,
			PeakCountThr:   cfg.Manhattan.PeakCountThresh,
			PeakCap:        cfg.Manhattan.PeakCap,
			UnbinnedCap:    cfg.Manhattan.UnbinnedCap,
			BinLength:      cfg.Manhattan.BinLength,
			QvalBinStart:   cfg.Manhattan.QvalBinStart,
		},
		FieldAliases:   cfg.FieldAliases,
		PvalIsNegLog10: cfg.PvalIsNegLog10,
	}

	server := api.NewServer(api.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		URLPrefix:   cfg.URLPrefix,
	}, facade)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

package main

import (
	"errors"
	"fmt"

	"github.com/mwantia/gridindex"
	"github.com/mwantia/gridindex/config"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/scanner/idx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	Config     string
	Policy     string
	Collection string
	Workers    int
}

var buildOpts = &buildOptions{}

var buildCommand = &cobra.Command{
	Use:   "build",
	Short: "Build or refresh the indexes of the configured collections",
	Long: `Walks every configured collection bottom-up, reusing indexes that are
still current and rebuilding the rest.

Usage examples:

1. Refresh every collection, rebuilding only stale indexes:

	gridindex build --config /etc/gridindex.yaml

2. Force a full rebuild of one collection with four workers:

	gridindex build --config /etc/gridindex.yaml --collection gfs --policy always --workers 4
`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	flags := buildCommand.Flags()

	flags.StringVarP(&buildOpts.Config, "config", "c", "gridindex.yaml",
		"Path to the configuration file.")
	flags.StringVar(&buildOpts.Policy, "policy", "",
		"Update policy (always, test, nocheck, never). Overrides every collection.")
	flags.StringVar(&buildOpts.Collection, "collection", "",
		"Only build the named collection.")
	flags.IntVar(&buildOpts.Workers, "workers", 0,
		"Number of sibling units processed concurrently. Overrides the configuration file.")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load[idx.Options](afero.NewOsFs(), buildOpts.Config)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}

	collections := cfg.Collections
	if buildOpts.Collection != "" {
		cc, ok := cfg.Collection(buildOpts.Collection)
		if !ok {
			return data.InvalidConfig("unknown collection '%s'", buildOpts.Collection)
		}
		collections = []data.CollectionConfig[idx.Options]{cc}
	}

	workers := cfg.Workers
	if buildOpts.Workers > 0 {
		workers = buildOpts.Workers
	}

	cat, err := cfg.Catalog.NewCatalog()
	if err != nil {
		return err
	}
	if cat != nil {
		if err := cat.Open(ctx); err != nil {
			return err
		}
		defer cat.Close(ctx)
	}

	publisher, err := cfg.Publish.NewPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		if err := publisher.Open(ctx); err != nil {
			return err
		}
		defer publisher.Close(ctx)
	}

	locker, err := cfg.Lock.NewLocker()
	if err != nil {
		return err
	}

	opts := []gridindex.IndexerOption{
		gridindex.WithLogger(logger),
		gridindex.WithLocker(locker),
		gridindex.WithWorkers(workers),
		gridindex.WithPolicy(data.UpdatePolicy(buildOpts.Policy)),
	}
	if cat != nil {
		opts = append(opts, gridindex.WithCatalog(cat))
	}
	if publisher != nil {
		opts = append(opts, gridindex.WithPublisher(publisher))
	}

	var errs []error
	for _, cc := range collections {
		ix, err := gridindex.New(cc, idx.New(), opts...)
		if err != nil {
			return err
		}

		report, err := ix.Run(ctx)
		if report != nil {
			printReport(cmd, cc.Name, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("collection '%s': %w", cc.Name, err))
			continue
		}
		if err := report.Err(); err != nil {
			errs = append(errs, fmt.Errorf("collection '%s': %w", cc.Name, err))
		}
	}

	return errors.Join(errs...)
}

func printReport(cmd *cobra.Command, name string, report *gridindex.Report) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s: %d built, %d reused, %d failed\n", name, report.Built, report.Reused, len(report.Failed()))
	for _, unit := range report.Failed() {
		fmt.Fprintf(out, "  failed %s '%s': %v\n", unit.Kind, unit.Name, unit.Err)
	}
	for _, ambiguity := range report.Ambiguities {
		fmt.Fprintf(out, "  ambiguous in '%s': %v\n", ambiguity.Partition, ambiguity.Err())
	}
}

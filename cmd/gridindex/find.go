package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/config"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/scanner/idx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type findOptions struct {
	Config  string
	Catalog string
}

var findOpts = &findOptions{}

var findCommand = &cobra.Command{
	Use:   "find <variable>",
	Short: "List the indexes containing a variable",
	Long: `Queries the catalog for every collection and partition index listing
the variable.

Usage examples:

1. Query a SQLite catalog directly:

	gridindex find --catalog /var/lib/gridindex/catalog.db TMP

2. Query a PostgreSQL catalog:

	gridindex find --catalog postgres://gridindex@db/gridindex TMP

3. Query the catalog of a configuration file:

	gridindex find --config /etc/gridindex.yaml TMP
`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	flags := findCommand.Flags()

	flags.StringVarP(&findOpts.Config, "config", "c", "",
		"Path to the configuration file whose catalog is queried.")
	flags.StringVar(&findOpts.Catalog, "catalog", "",
		"SQLite database path or PostgreSQL connection URL.")
}

func openCatalog() (catalog.Catalog, error) {
	if findOpts.Catalog != "" {
		cc := config.CatalogConfig{Type: "sqlite", Path: findOpts.Catalog}
		if strings.HasPrefix(findOpts.Catalog, "postgres://") || strings.HasPrefix(findOpts.Catalog, "postgresql://") {
			cc = config.CatalogConfig{Type: "postgres", DSN: findOpts.Catalog}
		}
		return cc.NewCatalog()
	}

	if findOpts.Config == "" {
		return nil, data.InvalidConfig("either --catalog or --config is required")
	}
	cfg, err := config.Load[idx.Options](afero.NewOsFs(), findOpts.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Type == "" || cfg.Catalog.Type == "memory" {
		return nil, data.InvalidConfig("'%s' configures no persistent catalog", findOpts.Config)
	}
	return cfg.Catalog.NewCatalog()
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cat, err := openCatalog()
	if err != nil {
		return err
	}
	if err := cat.Open(ctx); err != nil {
		return err
	}
	defer cat.Close(ctx)

	entries, err := cat.Find(ctx, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tSTATUS\tBUILT AT\tINDEX")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", entry.Kind, entry.Name, entry.Status, entry.BuiltAt.Format(time.RFC3339), entry.IndexPath)
	}
	return tw.Flush()
}

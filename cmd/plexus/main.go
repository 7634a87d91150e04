// Package main provides the Plexus CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/plexusdb/plexus/pkg/adapter/embedding"
	"github.com/plexusdb/plexus/pkg/adapter/fragment"
	plexusconfig "github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/engine"
	"github.com/plexusdb/plexus/pkg/enrichment"
	"github.com/plexusdb/plexus/pkg/ingest"
	"github.com/plexusdb/plexus/pkg/metrics"
	"github.com/plexusdb/plexus/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plexus",
		Short: "Plexus - multi-dimensional knowledge-graph ingest engine",
		Long: `Plexus ingests adapter-supplied fragments into a bounded, per-context
knowledge graph, reinforcing cross-adapter agreement into a derived edge
weight and running reactive enrichments to quiescence after every ingest
call.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("plexus v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the store, hydrate the engine, and block until shutdown",
		RunE:  runServe,
	}
	serveCmd.Flags().String("store-kind", "", "Override PLEXUS_STORE_KIND (badger or memory)")
	serveCmd.Flags().String("store-path", "", "Override PLEXUS_STORE_PATH")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := plexusconfig.LoadFromEnv()
	if v, _ := cmd.Flags().GetString("store-kind"); v != "" {
		cfg.StoreKind = v
	}
	if v, _ := cmd.Flags().GetString("store-path"); v != "" {
		cfg.StorePath = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("Starting plexus v%s\n", version)
	fmt.Printf("  store kind: %s\n", cfg.StoreKind)
	if cfg.StoreKind == "badger" {
		fmt.Printf("  store path: %s\n", cfg.StorePath)
	}

	var st store.Store
	var err error
	switch cfg.StoreKind {
	case "memory":
		st, err = store.NewBadgerStoreInMemory()
	default:
		st, err = store.NewBadgerStore(cfg.StorePath)
	}
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st)
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		eng.Metrics = m
	}
	if err := eng.Hydrate(); err != nil {
		return fmt.Errorf("hydrating engine: %w", err)
	}

	adapters := ingest.NewRegistry()
	adapters.Register(fragment.New("manual-fragment"))
	adapters.Register(embedding.New("embedding-similarity"))

	enrichments := enrichment.NewRegistry()
	for _, e := range []enrichment.Enrichment{
		enrichment.TagConceptBridger{OutputRelationship: "references"},
		enrichment.CoOccurrence{SourceRelationship: "tagged_with", OutputRelationship: "may_be_related"},
		enrichment.DiscoveryGap{TriggerRelationship: "similar_to", OutputRelationship: "discovery_gap"},
		enrichment.TemporalProximity{TimestampProperty: "occurredAt", OutputRelationship: "temporal_proximity"},
	} {
		if err := enrichments.Register(e); err != nil {
			return fmt.Errorf("registering enrichment: %w", err)
		}
	}

	pipeline := &ingest.Pipeline{Engine: eng, Adapters: adapters, Enrichment: enrichments}
	if m != nil {
		pipeline.Metrics = m
	}

	color.Green("plexus is ready — %d contexts loaded\n", len(eng.ListContexts()))
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down...")
	return nil
}

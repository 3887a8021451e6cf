package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openworm/wormgraph/config"
	_ "github.com/openworm/wormgraph/docs"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/store/memory"
	"github.com/openworm/wormgraph/internal/store/postgres"
)

var (
	// Build-time variables (set via ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// @title wormgraph API
// @version 1.0
// @description Deterministic identifiers and metadata enrichment for C. elegans research documents and cells.
// @BasePath /
func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wormgraph",
		Short:         "wormgraph storage service",
		Long:          "Stores C. elegans documents and cells as RDF statements under identifiers derived from their content.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newVersionCommand(),
		newIdentCommand(),
		newImportCommand(),
		newEnrichCommand(),
		newReindexCommand(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withApplication loads the configuration, builds the application, runs fn
// and closes it again.
func withApplication(cmd *cobra.Command, fn func(context.Context, *Application) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, runServer)
		},
	}
}

func runServer(ctx context.Context, app *Application) error {
	cfg := app.cfg
	app.logger.Info().Str("version", version).Str("commit", commit).Str("build_time", buildTime).Msg("starting wormgraph")

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	app.healthChecker.StartPeriodicChecks(healthCtx, 30*time.Second)

	handler := app.Handler()
	if cfg.Security.MaxBodySize > 0 {
		handler = http.MaxBytesHandler(handler, cfg.Security.MaxBodySize)
	}
	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverChan := make(chan error, 1)
	go func() {
		app.logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverChan <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverChan:
		return err
	case sig := <-quit:
		app.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	app.logger.Info().Msg("server shutdown completed")
	return nil
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				if err := m.Run(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	})

	var confirm bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every wormgraph table and re-apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("reset deletes all stored statements, pass --yes to continue")
			}
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				if err := m.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "database reset")
				return nil
			})
		},
	}
	resetCmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	migrateCmd.AddCommand(resetCmd)
	return migrateCmd
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *postgres.Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Type != "postgres" {
		return fmt.Errorf("migrations apply to the postgres store only, store.type is %q", cfg.Store.Type)
	}

	ctx := cmd.Context()
	pg, err := postgres.NewPostgresStore(ctx, cfg.GetDatabaseURL(), postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	return fn(ctx, postgres.NewMigrator(pg.GetPool(), logger.GetZerologLogger()))
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wormgraph\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		},
	}
}

func newIdentCommand() *cobra.Command {
	var spec models.DocumentSpec
	cmd := &cobra.Command{
		Use:   "ident",
		Short: "Print the identifier a document would be stored under",
		Example: `  wormgraph ident --doi 10.1038/nature12345
  wormgraph ident --pmid 24098140 --uri https://example.org/paper`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := core.NewEngine(memory.NewStatementStore(), nil, nil, nil, nil, core.Options{HashFunc: cfg.HashFunc()})
			if err != nil {
				return err
			}
			preview, err := engine.ResolveDocumentIdentifier(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printJSON(cmd, preview)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&spec.DOI, "doi", "", "DOI or doi.org URL")
	flags.StringVar(&spec.PMID, "pmid", "", "PubMed id")
	flags.StringVar(&spec.WBID, "wbid", "", "WormBase paper id")
	flags.StringVar(&spec.Wormbase, "wormbase", "", "WormBase paper id or URL")
	flags.StringArrayVar(&spec.URI, "uri", nil, "document URI (repeatable)")
	flags.StringVar(&spec.PubMed, "pubmed", "", "PubMed id or URL")
	return cmd
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load YAML seed files or N-Triples into the store",
		Long: "Files ending in .nt are read as N-Triples and stored subject by subject. " +
			"Anything else is read as a YAML seed file with documents, neurons and muscles lists.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *Application) error {
				summaries := make([]*ImportSummary, 0, len(args))
				for _, path := range args {
					summary, err := importFile(ctx, app.engine, path)
					if err != nil {
						return err
					}
					summaries = append(summaries, summary)
				}
				return printJSON(cmd, summaries)
			})
		},
	}
	return cmd
}

func newEnrichCommand() *cobra.Command {
	var (
		source  string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "enrich IRI",
		Short: "Fill in a stored document from WormBase, PubMed or CrossRef",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *Application) error {
				result, err := app.engine.EnrichDocument(ctx, args[0], source, replace)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"report":         result.Report,
					"old_identifier": result.OldIdentifier,
					"new_identifier": result.NewIdentifier,
					"moved":          result.Moved(),
					"version":        result.Version,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "wormbase", "metadata source: wormbase, pubmed or crossref")
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite fields that already have values")
	return cmd
}

func newReindexCommand() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the statement store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *Application) error {
				if batchSize <= 0 {
					batchSize = app.cfg.Engine.BatchSize
				}
				stats, err := app.engine.Reindex(ctx, batchSize)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "documents per index batch (defaults to engine.batch_size)")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaswdr/faker"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/database"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/definitions"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/mcp"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/refresh"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/seed"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const serverName = "ekaya-dbmeta"

var (
	configPath string
	envFile    string
	schemaFlag string
	tableFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           serverName,
		Short:         "Database metadata cache and MCP server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file")
	rootCmd.PersistentFlags().StringVar(&schemaFlag, "schema", "", "Schema to operate on (overrides DB_SCHEMA)")

	rootCmd.AddCommand(serveCmd(), refreshCmd(), seedCmd(), cacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <database-url>",
		Short: "Serve metadata tools over MCP on stdin/stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(args[0], true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			deps := &tools.ToolDeps{
				Metadata:    svc,
				Definitions: definitions.NewStore(cfg.Cache.Dir, logger),
				Schema:      cfg.EffectiveSchema(),
				Version:     Version,
				Logger:      logger,
			}
			srv := mcp.NewMetadataServer(serverName, deps)

			logger.Info("Starting MCP server",
				zap.String("version", Version),
				zap.String("engine", svc.Engine()),
				zap.String("schema", deps.Schema),
				zap.String("cache_dir", cfg.Cache.Dir),
				zap.String("definitions", deps.Definitions.Path()))

			if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("MCP server stopped")
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <database-url>",
		Short: "Refresh cached metadata and wait for completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(args[0], true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.RefreshTableMetadata(ctx, cfg.EffectiveSchema(), tableFlag)
			if err != nil {
				return errors.New(apperrors.Message(err))
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tableFlag, "table", "", "Refresh a single table")
	return cmd
}

func seedCmd() *cobra.Command {
	var randSeed int64
	sizes := seed.DefaultSizes()

	cmd := &cobra.Command{
		Use:   "seed <postgres-url>",
		Short: "Create and populate the sample shop tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(args[0], true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			engine, _ := config.EngineFromURL(cfg.DatabaseURL)
			if engine != config.EnginePostgres {
				return fmt.Errorf("seed supports postgres only, got %s", engine)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := database.NewConnection(ctx, &database.Config{
				URL:             cfg.DatabaseURL,
				MaxConnections:  cfg.Datasource.PoolMaxConns,
				MaxConnIdleTime: cfg.Datasource.ConnIdleTime(),
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			f := faker.New()
			if randSeed != 0 {
				f = faker.NewWithSeed(rand.NewSource(randSeed))
			}
			ds := seed.Generate(f, sizes)

			start := time.Now()
			if err := seed.Seed(ctx, db, cfg.Schema, ds, logger); err != nil {
				return err
			}
			logger.Info("Seed complete",
				zap.String("schema", cfg.Schema),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&randSeed, "seed", 0, "Random seed for reproducible data (0 picks one)")
	cmd.Flags().IntVar(&sizes.Users, "users", sizes.Users, "Number of users")
	cmd.Flags().IntVar(&sizes.Products, "products", sizes.Products, "Number of products")
	cmd.Flags().IntVar(&sizes.Orders, "orders", sizes.Orders, "Number of orders")
	cmd.Flags().IntVar(&sizes.OrderItems, "order-items", sizes.OrderItems, "Number of order items")
	cmd.Flags().IntVar(&sizes.Events, "events", sizes.Events, "Number of events")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the metadata cache",
	}

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached documents for a table, a schema, or everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("", false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			schema := cfg.EffectiveSchema()
			if all {
				schema = ""
			}

			tracker, closeTracker, err := buildTracker(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeTracker()

			if err := refresh.EnsureClearable(ctx, tracker, schema, tableFlag); err != nil {
				return errors.New(apperrors.Message(err))
			}
			return cache.NewFileStore(cfg.Cache.Dir, logger).Clear(ctx, schema, tableFlag)
		},
	}
	clearCmd.Flags().StringVar(&tableFlag, "table", "", "Clear a single table")
	clearCmd.Flags().BoolVar(&all, "all", false, "Clear every schema")
	cmd.AddCommand(clearCmd)
	return cmd
}

// setup loads .env and configuration, applies CLI overrides and builds the
// logger. Logs go to stderr so stdout stays free for MCP traffic.
func setup(databaseURL string, requireURL bool) (*config.Config, *zap.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, err
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if schemaFlag != "" {
		cfg.Schema = schemaFlag
	}
	if requireURL {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// buildTracker returns the Redis tracker when Redis is configured and the
// in-process tracker otherwise.
func buildTracker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (refresh.Tracker, func(), error) {
	client, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return refresh.NewMemoryTracker(), func() {}, nil
	}

	tracker := refresh.NewRedisTracker(client, cfg.Redis.KeyPrefix, cfg.Redis.Lease(), logger)
	logger.Info("Using Redis refresh tracker", zap.String("addr", cfg.Redis.Addr()))
	return tracker, func() {
		_ = tracker.Close()
		_ = client.Close()
	}, nil
}

func buildService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.MetadataService, func(), error) {
	tracker, closeTracker, err := buildTracker(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	introspector, err := datasource.NewIntrospector(cfg.DatabaseURL, datasource.Options{
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
		ConnIdleTime: cfg.Datasource.ConnIdleTime(),
		QueryTimeout: cfg.Refresh.QueryTimeout(),
	}, logger)
	if err != nil {
		closeTracker()
		return nil, nil, err
	}

	svc := services.NewMetadataService(
		introspector,
		cache.NewFileStore(cfg.Cache.Dir, logger),
		tracker,
		services.MetadataConfig{
			TableLimit:        cfg.Refresh.TableLimit,
			TableConcurrency:  cfg.Refresh.TableConcurrency,
			MaxInFlight:       cfg.Datasource.RefreshSlots(),
			BackgroundBatches: cfg.Refresh.BackgroundBatches,
			TaskHistory:       cfg.Refresh.TaskHistory,
			Limits: services.RefreshLimits{
				SampleLimit:       cfg.Refresh.SampleLimit,
				TopValues:         cfg.Refresh.TopValues,
				ColumnConcurrency: cfg.Refresh.ColumnConcurrency,
			},
		},
		logger,
	)
	if err := svc.Connect(ctx); err != nil {
		closeTracker()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", logging.SanitizeConnectionString(cfg.DatabaseURL), err)
	}

	return svc, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Warn("Failed to close metadata service", zap.Error(err))
		}
		closeTracker()
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

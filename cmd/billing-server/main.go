package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/billing/internal/config"
	"github.com/ehr/billing/internal/domain/billing"
	"github.com/ehr/billing/internal/domain/terminology"
	"github.com/ehr/billing/internal/platform/db"
	"github.com/ehr/billing/internal/platform/middleware"
	"github.com/ehr/billing/internal/platform/validate"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "billing-server",
		Short:        "CPT billing record API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cptCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration for every subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schema, dir := migrateTarget(cmd, cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	addMigrateFlags(upCmd)
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schema, dir := migrateTarget(cmd, cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	addMigrateFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
}

// migrateTarget resolves the schema and directory flags, falling back to config.
func migrateTarget(cmd *cobra.Command, cfg *config.Config) (schema, dir string) {
	schema, _ = cmd.Flags().GetString("schema")
	dir, _ = cmd.Flags().GetString("dir")
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	return schema, dir
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func cptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpt",
		Short: "Manage CPT reference codes",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import CPT codes from a CSV file or s3://bucket/key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				source = cfg.CPTCodesSource
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			rc, err := terminology.OpenSource(ctx, source, terminology.SourceOptions{EndpointURL: cfg.AWSEndpointURL})
			if err != nil {
				return err
			}
			defer rc.Close()

			codes, err := terminology.ParseCSV(rc)
			if err != nil {
				return err
			}
			svc := newTerminologyService(pool)
			n, err := svc.ImportProcedureCodes(ctx, codes)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d CPT code(s) from %s\n", n, len(codes), source)
			return err
		},
	}
	importCmd.Flags().String("source", "", "CSV path or s3:// URI (default CPT_CODES_SOURCE)")
	cmd.AddCommand(importCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <code>",
		Short: "Print the description of a CPT code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newTerminologyService(pool)
			return printLookup(ctx, cmd.OutOrStdout(), svc, args[0])
		},
	})

	return cmd
}

func newTerminologyService(pool *pgxpool.Pool) *terminology.Service {
	return terminology.NewService(
		terminology.NewProcedureCodeRepoPG(pool),
		terminology.NewProcedureCodeImporterPG(pool),
	)
}

func printLookup(ctx context.Context, w io.Writer, svc *terminology.Service, code string) error {
	pc, err := svc.Lookup(ctx, code)
	if err != nil {
		return fmt.Errorf("%s: %w", code, err)
	}
	fmt.Fprintf(w, "%s\t%s\n", pc.Code, pc.Description)
	return nil
}

// services bundles what the HTTP layer needs, so tests can build a server on
// in-memory repositories.
type services struct {
	billing     *billing.Service
	terminology *terminology.Service
	dbHealth    echo.HandlerFunc
}

func newServer(cfg *config.Config, logger zerolog.Logger, svcs services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Pre(echomw.RemoveTrailingSlash())

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.RecordPrefixes...))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.Reads.PerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.Reads.Burst = cfg.RateLimitBurst
	}
	if cfg.RateLimitWriteRPS > 0 {
		rl.Writes.PerSecond = cfg.RateLimitWriteRPS
	}
	if cfg.RateLimitWriteBurst > 0 {
		rl.Writes.Burst = cfg.RateLimitWriteBurst
	}
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", db.LivenessHandler())
	if svcs.dbHealth != nil {
		e.GET("/health/db", svcs.dbHealth)
	}

	root := e.Group("")
	billing.NewHandler(svcs.billing, logger).RegisterRoutes(root)
	terminology.NewHandler(svcs.terminology, logger).RegisterRoutes(root)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger = newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	if cfg.AutoMigrate {
		n, err := db.NewMigrator(pool, cfg.MigrationsDir).WithLogger(logger).Up(ctx, cfg.DBSchema)
		if err != nil {
			logger.Error().Err(err).Msg("migration failed")
			return err
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	codes := terminology.NewProcedureCodeRepoPG(pool)
	termSvc := terminology.NewService(codes, terminology.NewProcedureCodeImporterPG(pool))

	res, err := termSvc.Preload(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return terminology.OpenSource(ctx, cfg.CPTCodesSource, terminology.SourceOptions{EndpointURL: cfg.AWSEndpointURL})
	})
	if err != nil {
		logger.Error().Err(err).Str("source", cfg.CPTCodesSource).Msg("failed to preload CPT codes; procedure_code left empty")
		return err
	}
	if res.Loaded > 0 {
		logger.Info().Int("count", res.Loaded).Str("source", cfg.CPTCodesSource).Msg("preloaded CPT codes")
	} else {
		logger.Info().Int("count", res.Existing).Msg("CPT codes already loaded")
	}

	billingSvc := billing.NewService(
		billing.NewPatientRepoPG(pool),
		billing.NewEncounterRepoPG(pool),
		billing.NewLineItemRepoPG(pool),
		codes,
	)

	e := newServer(cfg, logger, services{
		billing:     billingSvc,
		terminology: termSvc,
		dbHealth:    db.HealthHandler(pool, map[string]db.RowCounter{"procedure_code": codes.Count}),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/claims/internal/config"
	"github.com/ehr/claims/internal/platform/db"
	"github.com/ehr/claims/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "claims-server",
		Short:         "Hospital billing and insurance claims API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(reportCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger writes JSON lines, or human-readable output in development.
func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(cfg.Env, os.Stdout))
		},
	}
}

// withPool loads the configuration and opens a pool for one-shot commands.
func withPool(ctx context.Context, fn func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(cfg, pool, newLogger(cfg.Env, os.Stderr))
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var (
		tenant string
		all    bool
		target int
	)
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withPool(ctx, func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error {
				tenants := []string{tenantOrDefault(tenant, cfg)}
				if all {
					var err error
					if tenants, err = db.ListTenants(ctx, pool); err != nil {
						return err
					}
				}
				migrator := db.NewMigrator(pool, migrations.FS, log)
				for _, t := range tenants {
					count, err := migrator.UpTo(ctx, db.SchemaName(t), target)
					if err != nil {
						return fmt.Errorf("migrate tenant %s: %w", t, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s)\n", db.SchemaName(t), count)
				}
				return nil
			})
		},
	}
	upCmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to migrate (defaults to DEFAULT_TENANT)")
	upCmd.Flags().BoolVar(&all, "all", false, "Migrate every provisioned tenant")
	upCmd.Flags().IntVar(&target, "to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	var statusTenant string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withPool(ctx, func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error {
				schema := db.SchemaName(tenantOrDefault(statusTenant, cfg))
				statuses, err := db.NewMigrator(pool, migrations.FS, log).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "Tenant to inspect (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantOrDefault(tenant string, cfg *config.Config) string {
	if tenant == "" {
		return cfg.DefaultTenant
	}
	return tenant
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			ctx := cmd.Context()
			return withPool(ctx, func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error {
				count, err := db.CreateTenantSchema(ctx, pool, name, db.NewMigrator(pool, migrations.FS, log))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s created (%d migration(s) applied)\n", db.SchemaName(name), count)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Tenant identifier (letters, digits, underscore)")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List provisioned tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withPool(ctx, func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error {
				tenants, err := db.ListTenants(ctx, pool)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	})
	return cmd
}

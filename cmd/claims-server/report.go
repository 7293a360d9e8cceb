package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/claims/internal/config"
	"github.com/ehr/claims/internal/platform/db"
	"github.com/ehr/claims/internal/platform/reporting"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Billing reports",
	}

	var (
		measure string
		out     string
		tenant  string
		params  map[string]string
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Evaluate a measure and write it as an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if measure == "" {
				return fmt.Errorf("--measure is required")
			}
			ctx := cmd.Context()
			return withPool(ctx, func(cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) error {
				svc := reporting.NewService(reporting.NewPGSource(pool), log)
				var report *reporting.Report
				err := db.WithTenantConn(ctx, pool, tenantOrDefault(tenant, cfg), func(ctx context.Context) error {
					var err error
					report, err = svc.Evaluate(ctx, measure, params)
					return err
				})
				if err != nil {
					return err
				}
				if out == "" {
					out = report.Filename()
				}
				return writeReport(out, report)
			})
		},
	}
	exportCmd.Flags().StringVar(&measure, "measure", "", "Measure id (see GET /api/v1/reports/measures)")
	exportCmd.Flags().StringVar(&out, "out", "", "Output file (defaults to <measure>-<date>.xlsx)")
	exportCmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to report on (defaults to DEFAULT_TENANT)")
	exportCmd.Flags().StringToStringVar(&params, "param", nil, "Measure parameter, e.g. --param from=2024-01-01")
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "measures",
		Short: "List available measures",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range reporting.Measures {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", m.ID, m.Description)
			}
			return nil
		},
	})
	return cmd
}

func writeReport(path string, r *reporting.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := reporting.WriteXLSX(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

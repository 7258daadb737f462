package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"funding/internal/config"
	"funding/internal/database"
	"funding/internal/domain"
	"funding/internal/modules/analytics"
	"funding/internal/repository"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var providerFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "analytics_rollup",
		Short: "Build daily payment analytics rows",
		Long: `Builds one analytics row per UTC day and provider.

Existing rows are never overwritten, so every command can be re-run safely.

Examples:
  analytics_rollup run
  analytics_rollup run --date 2026-03-01 --provider payu
  analytics_rollup backfill --from 2026-01-01 --to 2026-01-31`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "only this provider (stripe, payu)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(backfillCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Roll up one day (yesterday by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC().AddDate(0, 0, -1)
			if date != "" {
				d, err := analytics.ParseDate(date)
				if err != nil {
					return err
				}
				day = d
			}
			return rollup(cmd.Context(), day, day)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to roll up, YYYY-MM-DD")
	return cmd
}

func backfillCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Roll up every day in an inclusive range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := analytics.ParseDate(from)
			if err != nil {
				return err
			}
			end, err := analytics.ParseDate(to)
			if err != nil {
				return err
			}
			return rollup(cmd.Context(), start, end)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func rollup(ctx context.Context, from, to time.Time) error {
	providers, err := selectedProviders()
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}

	svc := analytics.NewService(
		repository.NewPaymentRepository(db),
		repository.NewAnalyticsRepository(db),
		providers,
		log.Printf,
	)
	created, err := svc.Backfill(ctx, from, to)
	if err != nil {
		return err
	}
	log.Printf("analytics rollup completed: from=%s to=%s providers=%v created=%d",
		from.Format(domain.AnalyticsDateLayout), to.Format(domain.AnalyticsDateLayout), providers, created)
	return nil
}

func selectedProviders() ([]domain.PaymentProvider, error) {
	all := []domain.PaymentProvider{domain.ProviderPayU, domain.ProviderStripe}
	if providerFlag == "" {
		return all, nil
	}
	p := domain.PaymentProvider(strings.ToLower(strings.TrimSpace(providerFlag)))
	for _, known := range all {
		if p == known {
			return []domain.PaymentProvider{p}, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q", providerFlag)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/application/factories/infrastructure"
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, cfg.Log.NewLogger(cfg.App.Name))
	defer infraFactory.Close()

	if err := rootCommand(ctx, infraFactory).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand(ctx context.Context, f *infrastructure.Factory) *cobra.Command {
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Look at the outbox and the raw webhook log",
		SilenceUsage: true,
	}

	var (
		fix        bool
		stuckAfter time.Duration
		limit      int
	)

	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "List recent outbox events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := f.Postgres(ctx)
			if err != nil {
				return err
			}
			return printOutbox(ctx, cmd, pool, fix, stuckAfter, limit)
		},
	}
	outboxCmd.Flags().BoolVar(&fix, "fix", false, "requeue events stuck in processing")
	outboxCmd.Flags().DurationVar(&stuckAfter, "stuck-after", 5*time.Minute, "age after which a processing event counts as stuck")
	outboxCmd.Flags().IntVar(&limit, "limit", 10, "number of events to list")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Count raw webhook events per source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := f.Postgres(ctx)
			if err != nil {
				return err
			}
			counts, err := postgres.NewWebhookEventRepository(pool).CountBySource(ctx)
			if err != nil {
				return err
			}
			sources := make([]string, 0, len(counts))
			for s := range counts {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				cmd.Printf("%-10s %d\n", s, counts[s])
			}
			return nil
		},
	}

	root.AddCommand(outboxCmd, eventsCmd)
	return root
}

func printOutbox(ctx context.Context, cmd *cobra.Command, pool *pgxpool.Pool, fix bool, stuckAfter time.Duration, limit int) error {
	repo := postgres.NewOutboxRepository(pool)

	if fix {
		n, err := repo.ResetStuck(ctx, stuckAfter)
		if err != nil {
			return err
		}
		cmd.Printf("requeued %d events\n", n)
	}

	events, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	cmd.Println("--- Outbox ---")
	for _, e := range events {
		cmd.Printf("ID: %s | Status: %s | Type: %s | Correlation: %s\n", e.ID, e.Status, e.EventType, e.CorrelationID)
	}
	return nil
}

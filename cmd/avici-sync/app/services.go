package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalapp "github.com/yagnadeepxo/avici-internal-dashboard/internal/app"
)

const closeTimeout = 10 * time.Second

type serviceBuilder func(ctx context.Context, opts ...internalapp.Option) (*internalapp.ServiceApp, error)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the user feed sync service",
		Long: `Mirror the paginated user feed into the users table.

The first run pages through the whole feed. Later runs stop at the stored
checkpoint, the newest user id seen by the previous run. Runs repeat on the
configured interval until interrupted; --once performs a single run and exits
non-zero if it fails.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, v, internalapp.NewSyncApp)
		},
	}
	addServiceFlags(cmd)
	return cmd
}

func newEnrichCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run the geolocation enrichment service",
		Long: `Fill missing country, state, city, district and country code columns of
stored users from the geolocation API. Columns that are already set are never
overwritten and private or invalid IP addresses are skipped without a lookup.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, v, internalapp.NewEnrichmentApp)
		},
	}
	addServiceFlags(cmd)
	return cmd
}

func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("once", false, "Run a single pass and exit")
	cmd.Flags().String("address", "", "Ops server listen address (overrides ops.address)")
}

func runService(cmd *cobra.Command, v *viper.Viper, build serviceBuilder) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	once, err := cmd.Flags().GetBool("once")
	if err != nil {
		return fmt.Errorf("failed to get once flag: %w", err)
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}

	opts := []internalapp.Option{internalapp.WithConfig(cfg)}
	if address != "" {
		opts = append(opts, internalapp.WithAddress(address))
	}

	svc, err := build(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Error("Error releasing resources", "error", err)
		}
	}()

	if once {
		return svc.RunOnce(ctx)
	}
	return svc.Run(ctx)
}

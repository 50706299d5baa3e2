package clawnet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Clawnet node",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("starting clawnet node",
		slog.String("version", version),
		slog.String("addr", cfg.Server.ListenAddr()),
		slog.String("gateway_mode", cfg.Gateway.Mode),
	)
	if err := cfg.Protocol.Validate(); err != nil {
		logger.Warn("protocol settings incomplete, chain operations will fail until configured",
			slog.String("err", err.Error()),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracer(tctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("err", err.Error()))
		}
	}()

	n, err := buildNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.run(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

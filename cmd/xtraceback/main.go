// Package main implements the xtraceback CLI for rendering goroutine dumps
// and demonstrating scoped panic presentation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/xtraceback"
	"github.com/fyrsmithlabs/xtraceback/internal/config"
	"github.com/fyrsmithlabs/xtraceback/internal/logging"
	"github.com/fyrsmithlabs/xtraceback/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/xtraceback/cmd/xtraceback"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "xtraceback",
		Short: "Readable Go panic tracebacks",
		Long: `xtraceback renders Go goroutine dumps as source-annotated tracebacks.

Examples:
  # Render a crash log
  xtraceback format crash.log

  # Render from stdin
  go run ./broken 2>&1 | xtraceback format -

  # See what an installed scope looks like
  xtraceback demo`,
		Version:       xtraceback.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/xtraceback/config.yaml)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newFormatCmd(&configPath))
	root.AddCommand(newDemoCmd(&configPath))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the xtraceback version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), xtraceback.Version)
			return err
		},
	}
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, xtraceback.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Debug(ctx, "xtraceback configured",
		zap.String("color", cfg.Traceback.Color),
		zap.Bool("telemetry", tel.IsEnabled()))
	return &app{cfg: cfg, logger: logger, tel: tel}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}

// initLogger maps the logging section onto a logger. Entries dropped by the
// sampler are counted, so thinned panic reports still show up in metrics.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = cfg.Logging.OTEL

	sampledOut, err := tel.Meter(instrumentationName).Int64Counter("xtraceback.log.sampled_out",
		metric.WithDescription("Log entries dropped by sampling"))
	if err == nil {
		lc.Sampling.OnDrop = func(e zapcore.Entry) {
			sampledOut.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("level", e.Level.String())))
		}
	}

	if cfg.Logging.OTEL {
		return logging.NewLogger(lc, global.GetLoggerProvider())
	}
	return logging.NewLogger(lc, nil)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/persona-hq/persona/internal/allowlist"
	"github.com/persona-hq/persona/internal/bot"
	"github.com/persona-hq/persona/internal/config"
	"github.com/persona-hq/persona/internal/gateway"
	"github.com/persona-hq/persona/internal/registry"
	"github.com/persona-hq/persona/internal/supervisor"
	"github.com/persona-hq/persona/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.AutoLoad()
	if err != nil {
		slog.Error("configuration error", "error", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed, err := run(ctx, cfg, logger)
	if err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	if failed {
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (bool, error) {
	slog.Info("persona starting", "version", version, "bots", len(cfg.Bots))

	// The allowlist gate runs before anything connects. All-or-nothing:
	// one conflicting pair means no bot starts.
	if report := allowlist.Validate(cfg.Bots); !report.OK() {
		for _, m := range report.Missing {
			logger.Error("allowlist validation", "problem", m.String())
		}
		for _, c := range report.Conflicts {
			logger.Error("allowlist validation", "problem", c.String())
		}
		return false, fmt.Errorf("validate allowlists: %w", report.Err())
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return false, fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	reg, err := registry.New(ctx, cfg, logger)
	if err != nil {
		return false, err
	}
	defer func() { _ = reg.Close() }()

	dialer := gateway.NewWebsocketDialer(cfg.GatewayURL)

	tasks := make([]supervisor.Task, len(cfg.Bots))
	for i, identity := range cfg.Bots {
		tasks[i] = bot.New(identity, reg, dialer, bot.Options{
			MaxConnectAttempts: cfg.MaxConnectAttempts,
			GlobalModel:        cfg.Model,
			NotifyChannel:      cfg.NotifyChannel,
			ReminderInterval:   cfg.ReminderPollInterval.Std(),
			Version:            version,
			Logger:             logger,
		})
	}

	outcomes := supervisor.RunAll(ctx, tasks, supervisor.Options{
		GracePeriod: cfg.ShutdownGracePeriod.Std(),
		Logger:      logger,
	})

	for _, o := range outcomes {
		if o.Failed() {
			logger.Error("bot failed", "bot", o.Bot, "error", o.Err)
		} else {
			logger.Info("bot stopped", "bot", o.Bot)
		}
	}
	return supervisor.AnyFailed(outcomes), nil
}

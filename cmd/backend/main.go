package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/eventsync/external/config"
	"github.com/foxseedlab/eventsync/external/discord"
	"github.com/foxseedlab/eventsync/external/health"
	repositoryimpl "github.com/foxseedlab/eventsync/external/repository"
	webhookimpl "github.com/foxseedlab/eventsync/external/webhook"
	"github.com/foxseedlab/eventsync/internal/config"
	discordpkg "github.com/foxseedlab/eventsync/internal/discord"
	"github.com/foxseedlab/eventsync/internal/reconciler"
	"github.com/foxseedlab/eventsync/internal/telemetry"
	"github.com/samber/do/v2"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "guild_id", cfg.DiscordGuildID)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching event sync")
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load(".env")
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	telemetry.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	health.RegisterDI(injector)
	reconciler.RegisterDI(injector)

	return injector
}

func mustInvoke[T any](injector do.Injector, name string) T {
	v, err := do.Invoke[T](injector)
	if err != nil {
		slog.Error("failed to resolve "+name, "error", err)
		os.Exit(1)
	}
	return v
}

func run(cfg *config.Config, injector do.Injector) {
	rec := mustInvoke[*reconciler.Reconciler](injector, "reconciler")
	dc := mustInvoke[discordpkg.Client](injector, "discord client")
	srv := mustInvoke[*health.Server](injector, "http server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dc.RegisterScheduledEventHandler(rec.HandleScheduledEvent)
	dc.RegisterVoiceStateUpdateHandler(rec.HandleVoiceStateUpdate)
	dc.RegisterMemberHandler(rec.HandleMemberUpdate)
	dc.RegisterChannelHandler(rec.HandleChannelUpdate)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "implicit_voice_sessions", cfg.DiscordImplicitVoiceSessions)

	connectCtx, cancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")

	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-done:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancelShutdown()
	if report := injector.ShutdownWithContext(shutdownCtx); report != nil && !report.Succeed {
		slog.Error("shutdown finished with errors", "error", report.Error())
	}
}

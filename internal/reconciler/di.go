package reconciler

import (
	"log/slog"

	"github.com/foxseedlab/eventsync/internal/clock"
	"github.com/foxseedlab/eventsync/internal/config"
	"github.com/foxseedlab/eventsync/internal/idgen"
	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/foxseedlab/eventsync/internal/telemetry"
	"github.com/foxseedlab/eventsync/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Reconciler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		metrics := do.MustInvoke[*telemetry.Metrics](i)
		var wh webhook.Sender
		if cfg.SessionWebhookURL != "" {
			wh = do.MustInvoke[webhook.Sender](i)
		}
		return New(Deps{
			Repo:    repo,
			Webhook: wh,
			Clock:   clock.System{},
			IDs:     idgen.UUID{},
			Metrics: metrics,
			Logger:  slog.Default(),
		}, Options{
			GuildID:               cfg.DiscordGuildID,
			ImplicitVoiceSessions: cfg.DiscordImplicitVoiceSessions,
		}), nil
	})
}

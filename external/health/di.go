package health

import (
	"github.com/foxseedlab/eventsync/internal/config"
	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		reg := do.MustInvoke[*prometheus.Registry](i)
		return NewServer(cfg.HTTPAddr, NewHandler(repo, reg)), nil
	})
}

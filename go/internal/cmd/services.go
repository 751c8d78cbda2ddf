package main

import (
	"math/rand/v2"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/cubedraft/go/clients/ygoprodeck"
	"github.com/mcdev12/cubedraft/go/internal/allocator"
	"github.com/mcdev12/cubedraft/go/internal/cards"
	"github.com/mcdev12/cubedraft/go/internal/draft/outbox"
	"github.com/mcdev12/cubedraft/go/internal/draft/session"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type Services struct {
	Sessions *session.Service
}

func setupServices(database *store.DB, cfg Config, cardsCfg cards.Config) *Services {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	// Cards
	catalog := cards.NewCatalog(database.Queries(), ygoprodeck.NewClient(cardsCfg.APIBaseURL), clock, cardsCfg)

	// Sessions
	var rng *rand.Rand
	if cfg.AllocatorSeed != 0 {
		rng = rand.New(rand.NewPCG(cfg.AllocatorSeed, cfg.AllocatorSeed>>7|1))
	}
	sessionRepo := session.NewRepository(database)
	sessionApp := session.NewApp(sessionRepo, catalog, outbox.NewCommitter(database, clock), allocator.New(rng), clock)
	sessionService := session.NewService(sessionApp)

	return &Services{
		Sessions: sessionService,
	}
}

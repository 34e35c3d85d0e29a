package main

import (
	"context"
	"net/http"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/breaker"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/database"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/enrichment"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/migrations"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/googlebooks"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/isfdb"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/openlibrary"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/server"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting nachoseries", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	registry, closeISFDB, err := buildRegistry(cfg)
	if err != nil {
		log.Err(err).Fatal("provider registry error")
	}
	log.Info("providers registered", logger.Data{"providers": registry.Names()})

	quotaService := quota.NewService(db, cfg.DailyQuotas)

	srv, err := server.New(cfg, db, registry, quotaService)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	scheduler := enrichment.New(cfg, series.NewService(db), quotaService, registry, enrichment.Options{})

	graceful := signals.Setup()

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr})
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	if cfg.EnrichmentEnabled {
		scheduler.Start()
		log.Info("enrichment scheduler started")
	}

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	if cfg.EnrichmentEnabled {
		scheduler.Shutdown()
		log.Info("enrichment scheduler shutdown")
	}

	if closeISFDB != nil {
		if err := closeISFDB(); err != nil {
			log.Err(err).Error("isfdb database close error")
		}
	}

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// buildRegistry constructs the provider clients and their gates. Providers
// are registered in waterfall order: quota-free first, then quota-capped,
// then the local canonical fallback.
func buildRegistry(cfg *config.Config) (*providers.Registry, func() error, error) {
	registry := providers.NewRegistry()

	gate := func(name string) *providers.Gate {
		b := breaker.New(breaker.Options{
			FailureThreshold: cfg.BreakerFailureThreshold,
			BaseCooldown:     cfg.BreakerBaseCooldown,
			MaxCooldown:      cfg.BreakerMaxCooldown,
			CooldownFactor:   cfg.BreakerCooldownFactor,
		})
		return providers.NewGate(name, b, cfg.ProviderMinInterval, cfg.ProviderTimeout)
	}

	olClient := openlibrary.New(openlibrary.Options{
		HTTP: &http.Client{Timeout: cfg.ProviderTimeout + time.Second},
	})
	registry.Register(olClient, gate(olClient.Name()))

	gbClient := googlebooks.New(googlebooks.Options{
		APIKey: cfg.GoogleBooksAPIKey,
		HTTP:   &http.Client{Timeout: cfg.ProviderTimeout + time.Second},
	})
	registry.Register(gbClient, gate(gbClient.Name()))

	var closeISFDB func() error
	if cfg.ISFDBDatabasePath != "" {
		isfdbClient, err := isfdb.Open(cfg.ISFDBDatabasePath)
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		registry.Register(isfdbClient, gate(isfdbClient.Name()))
		closeISFDB = isfdbClient.Close
	}

	return registry, closeISFDB, nil
}

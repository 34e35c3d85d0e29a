package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/breaker"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/database"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/migrations"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/googlebooks"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/isfdb"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/openlibrary"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/verify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:      "verify",
		Usage:     "cross-check stored series against two providers",
		ArgsUsage: "SERIES_ID [SERIES_ID...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "provider-a",
				Usage: "preferred provider",
				Value: models.ProviderOpenLibrary,
			},
			&cli.StringFlag{
				Name:  "provider-b",
				Usage: "second provider",
				Value: models.ProviderGoogleBooks,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one series id is required")
			}

			db, err := database.New(cfg)
			if err != nil {
				return errors.WithStack(err)
			}
			defer db.Close()

			if _, err := migrations.BringUpToDate(c.Context, db); err != nil {
				return errors.WithStack(err)
			}

			registry, closeISFDB, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			if closeISFDB != nil {
				defer closeISFDB()
			}

			svc := verify.NewService(cfg, series.NewService(db), quota.NewService(db, cfg.DailyQuotas), registry)

			for _, arg := range c.Args().Slice() {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return errors.Errorf("malformed series id %q", arg)
				}

				outcome, err := svc.VerifySeries(c.Context, id, c.String("provider-a"), c.String("provider-b"))
				if err != nil {
					return err
				}

				data := logger.Data{
					"series_id":    outcome.SeriesID,
					"accepted":     outcome.Accepted,
					"needs_review": outcome.NeedsReview,
				}
				if outcome.Comparison != nil {
					data["confidence"] = outcome.Comparison.Confidence
					data["discrepancies"] = len(outcome.Comparison.Discrepancies)
				}
				if len(outcome.Missing) > 0 {
					data["missing"] = outcome.Missing
				}
				log.Info("verification outcome", data)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

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

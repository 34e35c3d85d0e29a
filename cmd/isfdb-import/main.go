package main

import (
	"context"
	"os"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/database"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/hierarchy"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/migrations"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/isfdb"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"
)

// importConfidence is the confidence recorded for rows imported straight
// from the canonical source without cross-provider reconciliation.
const importConfidence = 1.0

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:      "isfdb-import",
		Usage:     "import series hierarchies from a local ISFDB database",
		ArgsUsage: "SERIES_NAME [SERIES_NAME...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "isfdb-db",
				Usage: "path to the ISFDB sqlite file",
				Value: cfg.ISFDBDatabasePath,
			},
			&cli.StringFlag{
				Name:  "genre",
				Usage: "genre to tag imported series with",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report what would be imported without writing",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one series name is required")
			}
			if c.String("isfdb-db") == "" {
				return errors.New("no ISFDB database path configured")
			}

			db, err := database.New(cfg)
			if err != nil {
				return errors.WithStack(err)
			}
			defer db.Close()

			if _, err := migrations.BringUpToDate(c.Context, db); err != nil {
				return errors.WithStack(err)
			}

			client, err := isfdb.Open(c.String("isfdb-db"))
			if err != nil {
				return errors.WithStack(err)
			}
			defer client.Close()

			imp := &importer{
				log:           log,
				client:        client,
				seriesService: series.NewService(db),
				genre:         c.String("genre"),
				dryRun:        c.Bool("dry-run"),
			}
			imp.hierarchyService = hierarchy.NewService(imp.seriesService, client)

			for _, name := range c.Args().Slice() {
				if err := imp.importSeries(c.Context, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

type importer struct {
	log              logger.Logger
	client           *isfdb.Client
	seriesService    *series.Service
	hierarchyService *hierarchy.Service
	genre            string
	dryRun           bool
}

func (imp *importer) importSeries(ctx context.Context, name string) error {
	result, err := imp.client.FetchSeries(ctx, name)
	if err != nil {
		return err
	}
	if result.Miss() {
		imp.log.Warn("series not found in isfdb", logger.Data{"name": name})
		return nil
	}

	src := result.Series
	if imp.genre != "" {
		src.Genre = imp.genre
	}

	imp.log.Info("importing series", logger.Data{
		"name":       src.Name,
		"isfdb_id":   src.ExternalID,
		"books":      len(src.Books),
		"sub_series": len(src.SubSeries),
	})

	if imp.dryRun {
		for _, ref := range src.SubSeries {
			imp.log.Info("would import sub-series", logger.Data{"name": ref.Name, "isfdb_id": ref.ExternalID})
		}
		return nil
	}

	imported, err := imp.seriesService.UpsertFromSource(ctx, src, models.ProviderISFDB, importConfidence)
	if err != nil {
		return err
	}

	// Pull each declared sub-series in before reconciling so their books
	// land under the right series instead of the parent.
	for _, ref := range src.SubSeries {
		subResult, err := imp.client.FetchSeriesByExternalID(ctx, ref.ExternalID)
		if err != nil {
			return err
		}
		if subResult.Miss() {
			continue
		}
		if imp.genre != "" {
			subResult.Series.Genre = imp.genre
		}
		if _, err := imp.seriesService.UpsertFromSource(ctx, subResult.Series, models.ProviderISFDB, importConfidence); err != nil {
			return err
		}
	}

	if len(src.SubSeries) > 0 {
		reconciled, err := imp.hierarchyService.Reconcile(ctx, imported.ID, hierarchy.ReconcileOptions{Genre: imp.genre})
		if err != nil {
			return err
		}
		imp.log.Info("reconciled hierarchy", logger.Data{
			"series_id":  imported.ID,
			"sub_series": len(reconciled.SubSeries),
			"moves":      len(reconciled.Moves),
		})
	}

	// A series imported on its own may itself belong to an already imported
	// parent.
	linked, err := imp.hierarchyService.LinkSubSeries(ctx, imported.ID)
	if err != nil {
		return err
	}
	if linked {
		imp.log.Info("linked to parent series", logger.Data{"series_id": imported.ID})
	}

	return nil
}

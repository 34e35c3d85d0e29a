package main

import (
	"os"
	"strconv"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/database"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/hierarchy"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/migrations"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers/isfdb"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:  "maintenance",
		Usage: "periodic catalog housekeeping",
		Commands: []*cli.Command{
			{
				Name:  "prune-quotas",
				Usage: "delete quota ledger rows older than seven days",
				Action: func(c *cli.Context) error {
					return withDB(cfg, c, func(db *bun.DB) error {
						n, err := quota.NewService(db, cfg.DailyQuotas).Prune(c.Context)
						if err != nil {
							return err
						}
						log.Info("quota rows pruned", logger.Data{"rows": n})
						return nil
					})
				},
			},
			{
				Name:  "cleanup-orphans",
				Usage: "remove series with no books and no sub-series",
				Action: func(c *cli.Context) error {
					return withDB(cfg, c, func(db *bun.DB) error {
						n, err := series.NewService(db).CleanupOrphanedSeries(c.Context)
						if err != nil {
							return err
						}
						log.Info("orphaned series removed", logger.Data{"series": n})
						return nil
					})
				},
			},
			{
				Name:  "scan-misflattened",
				Usage: "flag series holding more books than the canonical provider declares",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "cap on how many series to scan; 0 scans all",
					},
				},
				Action: func(c *cli.Context) error {
					return withHierarchy(cfg, c, func(svc *hierarchy.Service) error {
						opts := hierarchy.FindMisflattenedOptions{}
						if limit := c.Int("limit"); limit > 0 {
							opts.Limit = &limit
						}
						flagged, err := svc.FindMisflattened(c.Context, opts)
						if err != nil {
							return err
						}
						for _, f := range flagged {
							log.Info("misflattened series", logger.Data{
								"series_id":       f.SeriesID,
								"name":            f.Name,
								"local_count":     f.LocalCount,
								"canonical_count": f.CanonicalCount,
							})
						}
						log.Info("misflatten scan finished", logger.Data{"flagged": len(flagged)})
						return nil
					})
				},
			},
			{
				Name:      "dedup-parents",
				Usage:     "remove books from a parent that now live in one of its sub-series",
				ArgsUsage: "SERIES_ID [SERIES_ID...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return errors.New("at least one parent series id is required")
					}
					return withHierarchy(cfg, c, func(svc *hierarchy.Service) error {
						for _, arg := range c.Args().Slice() {
							id, err := strconv.Atoi(arg)
							if err != nil {
								return errors.Errorf("malformed series id %q", arg)
							}
							removed, err := svc.DedupParents(c.Context, id)
							if err != nil {
								return err
							}
							log.Info("parent deduplicated", logger.Data{
								"series_id": id,
								"removed":   removed,
							})
						}
						return nil
					})
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func withDB(cfg *config.Config, c *cli.Context, fn func(db *bun.DB) error) error {
	db, err := database.New(cfg)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close()

	if _, err := migrations.BringUpToDate(c.Context, db); err != nil {
		return errors.WithStack(err)
	}
	return fn(db)
}

func withHierarchy(cfg *config.Config, c *cli.Context, fn func(svc *hierarchy.Service) error) error {
	if cfg.ISFDBDatabasePath == "" {
		return errors.New("ISFDB_DATABASE_PATH is required for hierarchy maintenance")
	}
	return withDB(cfg, c, func(db *bun.DB) error {
		client, err := isfdb.Open(cfg.ISFDBDatabasePath)
		if err != nil {
			return errors.WithStack(err)
		}
		defer client.Close()

		return fn(hierarchy.NewService(series.NewService(db), client))
	})
}

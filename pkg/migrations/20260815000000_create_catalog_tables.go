package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE series (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				deleted_at TIMESTAMPTZ,
				name TEXT NOT NULL,
				normalized_name TEXT NOT NULL,
				author TEXT,
				genre TEXT,
				book_count INTEGER NOT NULL DEFAULT 0,
				first_year INTEGER,
				last_year INTEGER,
				description TEXT,
				confidence REAL NOT NULL DEFAULT 0,
				verified BOOLEAN NOT NULL DEFAULT FALSE,
				parent_series_id INTEGER REFERENCES series (id),
				isfdb_id TEXT,
				open_library_id TEXT,
				google_books_id TEXT,
				goodreads_id TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// Lookup key, deliberately not unique: callers look up before
		// creating, and two logically distinct series can collide.
		_, err = db.Exec(`CREATE INDEX ix_series_normalized_name ON series (normalized_name)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_parent_series_id ON series (parent_series_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_isfdb_id ON series (isfdb_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE series_books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				series_id INTEGER REFERENCES series (id) NOT NULL,
				position REAL,
				title TEXT NOT NULL,
				normalized_title TEXT NOT NULL,
				author TEXT,
				year INTEGER,
				isbn TEXT,
				description TEXT,
				isfdb_id TEXT,
				open_library_id TEXT,
				google_books_id TEXT,
				has_ebook BOOLEAN NOT NULL DEFAULT FALSE,
				has_audiobook BOOLEAN NOT NULL DEFAULT FALSE,
				confidence REAL NOT NULL DEFAULT 0
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_books_series_id ON series_books (series_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_books_normalized_title ON series_books (normalized_title)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE provider_payloads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				series_id INTEGER REFERENCES series (id) NOT NULL,
				provider TEXT NOT NULL,
				payload BLOB NOT NULL,
				fetched_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_provider_payloads_series_id_provider ON provider_payloads (series_id, provider)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE quota_usage (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				provider TEXT NOT NULL,
				date TEXT NOT NULL,
				used INTEGER NOT NULL DEFAULT 0,
				UNIQUE (provider, date)
			)
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"quota_usage", "provider_payloads", "series_books", "series"} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}

package config

import (
	"os"
	"strconv"
)

func loadProductionConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.DatabaseFilePath = "/data/nachoseries.sqlite"
	if p := os.Getenv("DATABASE_FILE_PATH"); p != "" {
		cfg.DatabaseFilePath = p
	}
	cfg.ISFDBDatabasePath = os.Getenv("ISFDB_DATABASE_PATH")
	cfg.GoogleBooksAPIKey = os.Getenv("GOOGLE_BOOKS_API_KEY")
	cfg.ServerHost = "0.0.0.0"

	if q := os.Getenv("GOOGLE_BOOKS_DAILY_QUOTA"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			cfg.DailyQuotas["googlebooks"] = n
		}
	}
}

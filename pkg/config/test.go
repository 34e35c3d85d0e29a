package config

import "time"

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0

	cfg.ProviderMinInterval = 0
	cfg.BreakerBaseCooldown = 10 * time.Millisecond
	cfg.BreakerMaxCooldown = 100 * time.Millisecond
	cfg.EnrichmentEnabled = false
}

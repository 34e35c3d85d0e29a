package config

import (
	"os"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/pkg/errors"
)

// MatchWeights are the components of the reconciliation confidence score.
// The values are empirically chosen, so they live here rather than as
// literals in the matcher.
type MatchWeights struct {
	BookCountMatch     float64 // counts are exactly equal
	BookCountPartial   float64 // partial credit when counts differ
	TitleRatio         float64 // multiplied by the title-match ratio
	OrderMatch         float64 // relative order preserved
	Base               float64
	DiscrepancyPenalty float64 // subtracted per discrepancy
}

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	Hostname                  string
	ServerHost                string
	ServerPort                int

	// Path to a locally loaded ISFDB SQLite database (canonical provider).
	// Empty disables the ISFDB client.
	ISFDBDatabasePath string

	ProviderTimeout     time.Duration
	ProviderMinInterval time.Duration
	GoogleBooksAPIKey   string
	DailyQuotas         map[string]int // provider -> ceiling; 0 means unlimited

	BreakerFailureThreshold int
	BreakerBaseCooldown     time.Duration
	BreakerMaxCooldown      time.Duration
	BreakerCooldownFactor   float64

	TitleMatchThreshold   float64
	AuthorMatchThreshold  float64
	AutoAcceptThreshold   float64
	ManualReviewThreshold float64
	Weights               MatchWeights

	SeriesBatchSize   int
	BookBatchSize     int
	EnrichmentEnabled bool
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		Hostname:                  hostname,
		ServerPort:                3690,

		ProviderTimeout:     15 * time.Second,
		ProviderMinInterval: time.Second,
		DailyQuotas: map[string]int{
			models.ProviderGoogleBooks: 1000,
		},

		BreakerFailureThreshold: 5,
		BreakerBaseCooldown:     30 * time.Second,
		BreakerMaxCooldown:      300 * time.Second,
		BreakerCooldownFactor:   2,

		TitleMatchThreshold:   0.85,
		AuthorMatchThreshold:  0.8,
		AutoAcceptThreshold:   0.85,
		ManualReviewThreshold: 0.6,
		Weights: MatchWeights{
			BookCountMatch:     0.25,
			BookCountPartial:   0.10,
			TitleRatio:         0.50,
			OrderMatch:         0.15,
			Base:               0.10,
			DiscrepancyPenalty: 0.05,
		},

		SeriesBatchSize:   200,
		BookBatchSize:     500,
		EnrichmentEnabled: true,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}

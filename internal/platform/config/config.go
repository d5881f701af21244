package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr          string
	LoansDir      string
	OutputDir     string
	CatalogFile   string
	VerifierID    string
	JWTSigningKey string

	// Optional backends; empty values select the in-memory implementations.
	PostgresURL  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	// OperatorSecretHash is the bcrypt hash of the back-office operator
	// secret accepted by the token endpoint.
	OperatorSecretHash string

	CommsCooldown time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("LOANOPS_ADDR", ":8080"),
		LoansDir:           envOr("LOANOPS_LOANS_DIR", "./sample_loans"),
		OutputDir:          envOr("LOANOPS_OUTPUT_DIR", "./output"),
		CatalogFile:        os.Getenv("LOANOPS_CATALOG_FILE"),
		VerifierID:         envOr("LOANOPS_VERIFIER_ID", "loan-ops-system"),
		JWTSigningKey:      envOr("LOANOPS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresURL:        os.Getenv("LOANOPS_POSTGRES_URL"),
		RedisURL:           os.Getenv("LOANOPS_REDIS_URL"),
		KafkaTopic:         envOr("LOANOPS_KAFKA_TOPIC", "loanops.audit"),
		OperatorSecretHash: os.Getenv("LOANOPS_OPERATOR_SECRET_HASH"),
		CommsCooldown:      durationOr("LOANOPS_COMMS_COOLDOWN", 24*time.Hour),
	}
	if brokers := os.Getenv("LOANOPS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

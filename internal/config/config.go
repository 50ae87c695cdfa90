package config

import (
	"os"
	"strconv"
)

// Config holds runtime settings for the server, worker and CLI.
type Config struct {
	Port                string
	DBDriver            string
	DBDSN               string
	AutoMigrate         bool
	SeedData            bool
	JWTSecret           string
	OperatorPassword    string
	SampleDataDir       string
	CronIntervalSeconds int
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	return Config{
		Port:                getEnv("PORT", "8080"),
		DBDriver:            getEnv("WATERBILL_DB_DRIVER", "sqlite"),
		DBDSN:               getEnv("WATERBILL_DB_DSN", "waterbill.db"),
		AutoMigrate:         getEnvBool("WATERBILL_AUTO_MIGRATE", true),
		SeedData:            getEnvBool("WATERBILL_SEED", true),
		JWTSecret:           getEnv("WATERBILL_JWT_SECRET", "dev-only-secret"),
		OperatorPassword:    os.Getenv("WATERBILL_OPERATOR_PASSWORD"),
		SampleDataDir:       getEnv("WATERBILL_SAMPLE_DATA_DIR", "/data/usage"),
		CronIntervalSeconds: getEnvInt("WATERBILL_CRON_INTERVAL_SECONDS", 86400),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			return n
		}
	}
	return def
}

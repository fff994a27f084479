// Package config loads the service's environment-variable configuration,
// using the os.Getenv/getIntEnv idiom of infra/cmd/drone-agent in the wider
// retrieved pack, but read by a Load function rather than into
// package-level variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config is every ANNOTATOR_* environment variable, parsed and defaulted.
type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	VEPEndpoint string

	MaxBatchSize int
	MaxWaitTime  time.Duration
	MaxWorkers   int
	MaxRetries   int
	VEPTimeout   time.Duration

	TerminalRetention time.Duration

	MLModelPath string

	ListenAddr     string
	MigrationsPath string
	LogLevel       string
}

// Load reads the ANNOTATOR_* environment variables, applying the defaults
// SPEC_FULL.md §6 documents.
func Load() Config {
	return Config{
		DBHost:     getStrEnv(`ANNOTATOR_DB_HOST`, `127.0.0.1`),
		DBPort:     getIntEnv(`ANNOTATOR_DB_PORT`, 3306),
		DBUser:     getStrEnv(`ANNOTATOR_DB_USER`, `annotator`),
		DBPassword: os.Getenv(`ANNOTATOR_DB_PASSWORD`),
		DBName:     getStrEnv(`ANNOTATOR_DB_NAME`, `variant_annotations`),

		VEPEndpoint: getStrEnv(`ANNOTATOR_VEP_ENDPOINT`, `http://localhost:8080/vep/batch`),

		MaxBatchSize: getIntEnv(`ANNOTATOR_MAX_BATCH_SIZE`, 200),
		MaxWaitTime:  time.Duration(getIntEnv(`ANNOTATOR_MAX_WAIT_TIME_MS`, 5_000)) * time.Millisecond,
		MaxWorkers:   getIntEnv(`ANNOTATOR_MAX_WORKERS`, 3),
		MaxRetries:   getIntEnv(`ANNOTATOR_MAX_RETRIES`, 3),
		VEPTimeout:   time.Duration(getIntEnv(`ANNOTATOR_VEP_TIMEOUT_MS`, 10_000)) * time.Millisecond,

		TerminalRetention: time.Duration(getIntEnv(`ANNOTATOR_TERMINAL_RETENTION_MS`, 10_000)) * time.Millisecond,

		MLModelPath: os.Getenv(`ANNOTATOR_ML_MODEL_PATH`),

		ListenAddr:     getStrEnv(`ANNOTATOR_LISTEN_ADDR`, `:5000`),
		MigrationsPath: getStrEnv(`ANNOTATOR_MIGRATIONS_PATH`, `internal/cache/migrations`),
		LogLevel:       getStrEnv(`ANNOTATOR_LOG_LEVEL`, `info`),
	}
}

// DataSourceName builds the go-sql-driver/mysql DSN for this configuration.
func (c Config) DataSourceName() string {
	return fmt.Sprintf(`%s:%s@tcp(%s:%d)/%s?parseTime=true`, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// MigrateDatabaseURL builds the mattes/migrate "mysql://" URL, the form its
// database/mysql driver expects (distinct from DataSourceName's
// go-sql-driver/mysql DSN form).
func (c Config) MigrateDatabaseURL() string {
	return fmt.Sprintf(`mysql://%s:%s@tcp(%s:%d)/%s`, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// MigrationsSourceURL builds the "file://" source URL mattes/migrate expects
// from MigrationsPath.
func (c Config) MigrationsSourceURL() string {
	return `file://` + c.MigrationsPath
}

func getStrEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != `` {
		return v
	}
	return defaultValue
}

// getIntEnv gets an int value from an environment variable. If the
// environment variable is not valid or is not set, use the default value.
func getIntEnv(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf(`invalid %s, using default value (error: %v)`, key, err)
		return defaultValue
	}
	return n
}

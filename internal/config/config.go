// Package config loads server configuration from an optional TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	BackendDocument = "document"
	BackendSQL      = "sql"
)

type Config struct {
	// Port the HTTP server listens on.
	Port string `toml:"port"`
	// SecretKey signs session cookies. The default is for development
	// only.
	SecretKey string `toml:"secret_key"`
	// Backend selects the storage implementation: document or sql.
	Backend string `toml:"backend"`
	// DBDriver is the database/sql driver for the sql backend:
	// sqlite3, postgres or mysql.
	DBDriver string `toml:"db_driver"`
	// DBSource is the driver-specific data source name.
	DBSource string `toml:"db_source"`
	// DataDir holds the JSON documents of the document backend.
	DataDir string `toml:"data_dir"`
	// RedisAddr enables the redis task-list cache when set.
	RedisAddr string `toml:"redis_addr"`
}

func defaults() Config {
	return Config{
		Port:      "5000",
		SecretKey: "dev-secret-key-change-in-production",
		Backend:   BackendDocument,
		DBDriver:  "sqlite3",
		DBSource:  "taskboard.db",
		DataDir:   "data",
	}
}

// Load reads the config file if path is non-empty, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
	}

	override(&cfg.Port, "PORT")
	override(&cfg.SecretKey, "SECRET_KEY")
	override(&cfg.Backend, "BACKEND")
	override(&cfg.DBDriver, "DB_DRIVER")
	override(&cfg.DBSource, "DB_SOURCE")
	override(&cfg.DataDir, "DATA_DIR")
	override(&cfg.RedisAddr, "REDIS_ADDR")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func override(field *string, name string) {
	if v := os.Getenv(name); v != "" {
		*field = v
	}
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendDocument, BackendSQL:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.DBDriver {
	case "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}

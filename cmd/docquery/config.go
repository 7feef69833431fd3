package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the serve configuration. Every scalar setting can be overridden
// by a DOCQUERY_ environment variable (DOCQUERY_METRICS_ADDRESS, ...) or a flag.
type Config struct {
	Address         string `mapstructure:"address"`
	PublicAddress   string `mapstructure:"public_address"`
	MetricsAddress  string `mapstructure:"metrics_address"`
	LogLevel        string `mapstructure:"log_level"`
	FilterCacheSize int    `mapstructure:"filter_cache_size"`
	MaxMessageSize  int    `mapstructure:"max_message_size"`

	// DuckDB is the database path used by table-backed collections; empty is in-memory.
	DuckDB string `mapstructure:"duckdb"`
	// DuckDBInit statements run once after the database is opened.
	DuckDBInit []string `mapstructure:"duckdb_init"`

	Auth    []TokenConfig  `mapstructure:"auth"`
	Schemas []SchemaConfig `mapstructure:"schemas"`
}

// TokenConfig maps a bearer token to an identity. Collections, when set,
// limits the identity to "schema.collection" patterns.
type TokenConfig struct {
	Token       string   `mapstructure:"token"`
	Identity    string   `mapstructure:"identity"`
	Collections []string `mapstructure:"collections"`
}

type SchemaConfig struct {
	Name        string             `mapstructure:"name"`
	Comment     string             `mapstructure:"comment"`
	Collections []CollectionConfig `mapstructure:"collections"`
}

// CollectionConfig describes one collection. With Table set the collection
// reads a DuckDB table; otherwise documents are kept in memory and loaded
// from the Data JSON file.
type CollectionConfig struct {
	Name    string        `mapstructure:"name"`
	Comment string        `mapstructure:"comment"`
	Fields  []FieldConfig `mapstructure:"fields"`
	Indexes []string      `mapstructure:"indexes"`

	Data string `mapstructure:"data"`

	Table     string `mapstructure:"table"`
	KeyColumn string `mapstructure:"key_column"`
}

type FieldConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", ":50051")
	v.SetDefault("public_address", "")
	v.SetDefault("metrics_address", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("filter_cache_size", 0)
	v.SetDefault("max_message_size", 16<<20)
	v.SetDefault("duckdb", "")
}

// loadConfig reads the optional config file and environment into a Config.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("DOCQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Address == "" {
		return errors.New("config: address is required")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	for i, a := range c.Auth {
		if a.Token == "" || a.Identity == "" {
			return fmt.Errorf("config: auth[%d]: token and identity are required", i)
		}
	}
	for _, s := range c.Schemas {
		if s.Name == "" {
			return errors.New("config: schema name is required")
		}
		for _, coll := range s.Collections {
			if coll.Name == "" {
				return fmt.Errorf("config: schema %s: collection name is required", s.Name)
			}
			if coll.Table != "" && coll.Data != "" {
				return fmt.Errorf("config: collection %s.%s: data and table are mutually exclusive", s.Name, coll.Name)
			}
		}
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

func (c *Config) logger() *slog.Logger {
	level, _ := c.level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

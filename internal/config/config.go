// Package config loads the strata.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by FindConfig when no config file exists in
// the directory or any of its parents.
var ErrConfigNotFound = errors.New("config: no strata.yaml found")

// Backend names accepted in the units map.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config represents the strata.yaml configuration file.
type Config struct {
	// Directory holding the CUE entity catalog
	Catalog string `yaml:"catalog"`

	// Persistence unit -> backend (sqlite, neo4j or memory)
	Units map[string]string `yaml:"units"`

	Store StoreConfig `yaml:"store"`
	Graph GraphConfig `yaml:"graph"`
	Log   LogConfig   `yaml:"log"`
	Query QueryConfig `yaml:"query"`
}

// StoreConfig configures the SQLite column store.
type StoreConfig struct {
	Path           string `yaml:"path"`
	UseSearchIndex bool   `yaml:"use_search_index"`
}

// GraphConfig configures the Neo4j connection.
type GraphConfig struct {
	URI       string `yaml:"uri"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Database  string `yaml:"database,omitempty"`
	AutoIndex bool   `yaml:"auto_index"`
}

// LogConfig selects the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	MaxResults int `yaml:"max_results"`
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{"strata.yaml", "strata.yml", ".strata.yaml", ".strata.yml"}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Catalog: "catalog",
		Units:   defaultUnits(),
		Store:   StoreConfig{Path: "strata.db", UseSearchIndex: true},
		Graph:   GraphConfig{URI: "bolt://localhost:7687", AutoIndex: true},
		Log:     LogConfig{Level: "info"},
		Query:   QueryConfig{MaxResults: 100},
	}
}

func defaultUnits() map[string]string {
	return map[string]string{
		"column": BackendSQLite,
		"graph":  BackendMemory,
	}
}

// LoadConfig finds and loads the nearest strata.yaml walking up from dir.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}
		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path. Unset fields keep
// their defaults; relative catalog and store paths are resolved against
// the file's directory.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Catalog = resolve(base, cfg.Catalog)
	if cfg.Store.Path != ":memory:" {
		cfg.Store.Path = resolve(base, cfg.Store.Path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. A units
// map in the file replaces the default one.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Units = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Units == nil {
		cfg.Units = defaultUnits()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Units) == 0 {
		errs = append(errs, errors.New("config: units must map at least one persistence unit"))
	}
	graphUsed := false
	for unit, backend := range c.Units {
		switch backend {
		case BackendSQLite, BackendMemory:
		case BackendNeo4j:
			graphUsed = true
		default:
			errs = append(errs, fmt.Errorf("config: unit %q: unknown backend %q", unit, backend))
		}
	}
	if c.usesBackend(BackendSQLite) && c.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path is required"))
	}
	if graphUsed && c.Graph.URI == "" {
		errs = append(errs, errors.New("config: graph.uri is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", c.Log.Level))
	}
	if c.Query.MaxResults < 0 {
		errs = append(errs, errors.New("config: query.max_results must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) usesBackend(backend string) bool {
	for _, b := range c.Units {
		if b == backend {
			return true
		}
	}
	return false
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

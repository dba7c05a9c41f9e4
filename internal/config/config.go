// Package config implements CALIBER's ambient engine configuration: a
// YAML file describing the store DSN, listen addresses, default token
// budgets, recency half-life, and pack directory — distinct from the
// TOML pack manifest internal/pack compiles (spec §4.10's `cal.toml` is
// tenant-facing pack content; this file is operator-facing engine
// bootstrap config).
//
// Grounded on tarsy's pkg/config: Initialize/load/validate staging
// (loader.go), `dario.cat/mergo` default-resolution (same pattern as
// queueConfig's mergo.Merge), and ExpandEnv's shell-style env expansion
// (envexpand.go, copied near-verbatim since spec names no different
// mechanism).
package config

import (
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// StoreConfig mirrors store.Config's discrete DSN fields for YAML decode;
// Initialize converts it into a store.Config once resolved.
type StoreConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// TransportConfig holds listen addresses for the optional thin facades.
type TransportConfig struct {
	RESTAddr string `yaml:"rest_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// AssemblerConfig holds context-assembler defaults an operator can tune
// without touching a pack (spec §4.8's budget/half-life are per-request,
// but every request needs a fallback default).
type AssemblerConfig struct {
	DefaultBudgetTokens int           `yaml:"default_budget_tokens"`
	RecencyHalfLife     time.Duration `yaml:"recency_half_life"`
	TokenEncoding       string        `yaml:"token_encoding"`
}

// LockConfig holds lock-arbiter tuning (spec §5's timeouts, §9's reaper
// cadence Open Question).
type LockConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
}

// Config is the complete ambient engine configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Assembler AssemblerConfig `yaml:"assembler"`
	Locks     LockConfig      `yaml:"locks"`
	PackDir   string          `yaml:"pack_dir"`
	LogLevel  string          `yaml:"log_level"`

	path string
}

// defaultConfig mirrors tarsy's GetBuiltinConfig()-then-mergo pattern:
// every field here is the fallback applied when Initialize's YAML leaves
// it zero.
func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Transport: TransportConfig{
			RESTAddr: ":8080",
			GRPCAddr: ":9090",
		},
		Assembler: AssemblerConfig{
			DefaultBudgetTokens: 8000,
			RecencyHalfLife:     24 * time.Hour,
			TokenEncoding:       "cl100k_base",
		},
		Locks: LockConfig{
			DefaultTimeout: 2 * time.Second,
			ReapInterval:   30 * time.Second,
		},
		PackDir:  "./pack",
		LogLevel: "info",
	}
}

// Initialize loads path, expands env vars, merges onto defaultConfig, and
// validates the result — the same Load → merge → validate sequence as
// tarsy's Initialize (pkg/config/loader.go), YAML replacing... nothing:
// ambient config stays YAML even though the pack manifest is TOML, since
// spec only mandates TOML for `cal.toml` specifically.
func Initialize(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, caliberr.Internal("read config %s: %v", path, err)
	}
	raw = ExpandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, caliberr.Validation("config", "invalid YAML in %s: %v", path, err)
	}

	defaults := defaultConfig()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, caliberr.Internal("merge config defaults: %v", err)
	}
	cfg.path = path
	return &cfg, nil
}

// Validate checks the fields Initialize cannot safely default.
func (c *Config) Validate() error {
	if c.Store.Database == "" {
		return caliberr.Validation("store.database", "must be set in %s", c.path)
	}
	if c.Assembler.DefaultBudgetTokens <= 0 {
		return caliberr.Validation("assembler.default_budget_tokens", "must be positive")
	}
	return nil
}

// ToStoreConfig converts the YAML-decoded store block into store.Config.
func (c *Config) ToStoreConfig() store.Config {
	return store.Config{
		Host:            c.Store.Host,
		Port:            c.Store.Port,
		User:            c.Store.User,
		Password:        c.Store.Password,
		Database:        c.Store.Database,
		SSLMode:         c.Store.SSLMode,
		MaxConns:        c.Store.MaxConns,
		MinConns:        c.Store.MinConns,
		MaxConnLifetime: c.Store.MaxConnLifetime,
		MaxConnIdleTime: c.Store.MaxConnIdleTime,
	}
}

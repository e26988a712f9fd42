// Package config loads quill configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Backend names accepted by store.backend.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
)

// DefaultPostsKey is the key-value slot holding the serialized post collection.
const DefaultPostsKey = "blog-posts"

// Config is the complete quill configuration.
type Config struct {
	Store StoreConfig `yaml:"store" json:"store"`
	Posts PostsConfig `yaml:"posts" json:"posts"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of sqlite, memory, file, postgres, nats.
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database file (sqlite) or the data directory (file).
	Path string `yaml:"path" json:"path"`

	// DSN is the Postgres connection string (postgres).
	DSN string `yaml:"dsn" json:"dsn"`

	// NATSURL is the NATS server URL (nats).
	NATSURL string `yaml:"nats_url" json:"nats_url"`

	// Bucket is the JetStream key-value bucket name (nats).
	Bucket string `yaml:"bucket" json:"bucket"`
}

// PostsConfig configures the post store.
type PostsConfig struct {
	// Key is the slot the post collection is stored under.
	Key string `yaml:"key" json:"key"`

	// Latency is an artificial delay applied before every store operation,
	// as a Go duration string ("0s", "500ms").
	Latency string `yaml:"latency" json:"latency"`

	// Strict makes a malformed stored collection an error instead of an
	// empty collection.
	Strict bool `yaml:"strict" json:"strict"`
}

// LogConfig configures the zap logger built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "quill.db",
			Bucket:  "quill",
		},
		Posts: PostsConfig{
			Key:     DefaultPostsKey,
			Latency: "0s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LatencyDuration returns Latency as a duration. Invalid values yield zero;
// Validate rejects them before they get here.
func (c *PostsConfig) LatencyDuration() time.Duration {
	if c.Latency == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Latency)
	if err != nil {
		return 0
	}
	return d
}

// Load reads the YAML file at path on top of the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown fields, then validates it.
func Parse(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the configuration against the CUE schema and the
// per-backend requirements the schema does not express.
func (c *Config) Validate() error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.Unify(cctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}

	switch c.Store.Backend {
	case BackendSQLite, BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("invalid config: store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("invalid config: store.dsn is required for the postgres backend")
		}
	case BackendNATS:
		if c.Store.NATSURL == "" {
			return fmt.Errorf("invalid config: store.nats_url is required for the nats backend")
		}
	}
	return nil
}

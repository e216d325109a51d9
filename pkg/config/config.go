// Package config loads clusterfs configuration.
//
// Configuration comes from a single YAML file. Values missing from the file keep
// their defaults, and per-kind storage settings are merged over the storage
// defaults field by field, so a kind only needs to name what it changes:
//
//	root: /srv/clusterfs
//	storage:
//	  defaults:
//	    depth: 3
//	    max_items: 4096
//	  kinds:
//	    Photo:
//	      hex: true
//	      processor: [zstd, checksum]
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"clusterfs/pkg/cluster"
)

// EnvConfigPath names the environment variable consulted when no --config flag is given.
const EnvConfigPath = "CLUSTERFS_CONFIG"

// State backends.
const (
	BackendSqlite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Storage defaults.
const (
	DefaultBaseDir  = ":root/public/storage"
	DefaultTo       = ":storage_name/:id-:base_name.:extension"
	DefaultDepth    = 3
	DefaultMaxItems = 4096
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete clusterfs configuration.
type Config struct {
	// Root is the value of the :root placeholder.
	Root string `yaml:"root"`

	// Listen is the HTTP listen address of clusterd.
	Listen string `yaml:"listen"`

	// Database is the sqlite file holding documents and, with the sqlite
	// backend, cluster counters.
	Database string `yaml:"database"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level"`

	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	// State selects where cluster counters live.
	State StateConfig `yaml:"state"`

	// Storage holds the attachment settings.
	Storage StorageConfig `yaml:"storage"`
}

// StateConfig selects the cluster state backend.
type StateConfig struct {
	// Backend is one of sqlite, memory or redis.
	Backend string `yaml:"backend"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis state backend.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// StorageConfig holds default and per-kind storage settings.
type StorageConfig struct {
	Defaults Storage                  `yaml:"defaults"`
	Kinds    map[string]StorageOverride `yaml:"kinds"`
}

// Storage is the resolved configuration of one attachment kind.
type Storage struct {
	// BaseDir is the template of the directory everything is stored under.
	BaseDir string `yaml:"base_dir"`
	// To is the template of the path below BaseDir; its directory part is
	// placed above the allocated slot and its file part below it.
	To string `yaml:"to"`
	// Depth is the number of counter digits; files nest Depth-1 directories deep.
	Depth int `yaml:"depth"`
	// MaxItems is the capacity of each directory level.
	MaxItems int `yaml:"max_items"`
	// Hex renders directory names in uppercase hexadecimal.
	Hex bool `yaml:"hex"`
	// Processor lists post-processors run after a save, in order.
	Processor Processors `yaml:"processor"`
}

// StorageOverride is a per-kind partial Storage. Nil fields inherit the defaults.
type StorageOverride struct {
	BaseDir   *string     `yaml:"base_dir"`
	To        *string     `yaml:"to"`
	Depth     *int        `yaml:"depth"`
	MaxItems  *int        `yaml:"max_items"`
	Hex       *bool       `yaml:"hex"`
	Processor *Processors `yaml:"processor"`
}

// Processors is a list of processor names. In YAML it may be written as a
// single name or as a sequence.
type Processors []string

// UnmarshalYAML accepts a scalar or a sequence of names.
func (p *Processors) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*p = nil
			return nil
		}
		*p = Processors{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*p = names
		return nil
	default:
		return fmt.Errorf("%w: processor must be a name or a list of names (line %d)", ErrInvalidConfig, node.Line)
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Root:     ".",
		Listen:   ":8080",
		Database: "clusterfs.db",
		LogLevel: "info",
		Metrics:  true,
		State: StateConfig{
			Backend: BackendSqlite,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "clusterfs:cluster:",
			},
		},
		Storage: StorageConfig{
			Defaults: DefaultStorage(),
			Kinds:    map[string]StorageOverride{},
		},
	}
}

// DefaultStorage returns the stock attachment settings.
func DefaultStorage() Storage {
	return Storage{
		BaseDir:  DefaultBaseDir,
		To:       DefaultTo,
		Depth:    DefaultDepth,
		MaxItems: DefaultMaxItems,
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults. The result is validated and Root is made absolute.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize makes Root absolute and initialises empty maps.
func (c *Config) Normalize() error {
	if c.Root == "" {
		c.Root = "."
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolving root %q: %w", c.Root, err)
	}
	c.Root = root

	if c.Storage.Kinds == nil {
		c.Storage.Kinds = map[string]StorageOverride{}
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendSqlite, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalidConfig, c.State.Backend)
	}

	if c.Database == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if err := c.Storage.Defaults.Validate(); err != nil {
		return fmt.Errorf("storage defaults: %w", err)
	}
	for kind := range c.Storage.Kinds {
		if err := c.Storage.For(kind).Validate(); err != nil {
			return fmt.Errorf("storage kind %s: %w", kind, err)
		}
	}
	return nil
}

// Validate checks the bounds the allocator requires.
func (s Storage) Validate() error {
	if s.BaseDir == "" {
		return fmt.Errorf("%w: base_dir is required", ErrInvalidConfig)
	}
	// base_dir is resolved again whenever a stored file is looked up.
	if strings.Contains(s.BaseDir, ":hash") {
		return fmt.Errorf("%w: base_dir cannot use :hash, put it in to", ErrInvalidConfig)
	}
	if s.To == "" {
		return fmt.Errorf("%w: to is required", ErrInvalidConfig)
	}
	if s.Depth < 1 || s.Depth > cluster.MaxDepth {
		return fmt.Errorf("%w: depth must be between 1 and %d, got %d", ErrInvalidConfig, cluster.MaxDepth, s.Depth)
	}
	if s.MaxItems < 1 {
		return fmt.Errorf("%w: max_items must be at least 1, got %d", ErrInvalidConfig, s.MaxItems)
	}
	return nil
}

// For returns the settings of kind: the defaults with the kind's overrides applied.
func (c StorageConfig) For(kind string) Storage {
	settings := c.Defaults
	settings.Processor = append(Processors(nil), c.Defaults.Processor...)

	override, ok := c.Kinds[kind]
	if !ok {
		return settings
	}

	if override.BaseDir != nil {
		settings.BaseDir = *override.BaseDir
	}
	if override.To != nil {
		settings.To = *override.To
	}
	if override.Depth != nil {
		settings.Depth = *override.Depth
	}
	if override.MaxItems != nil {
		settings.MaxItems = *override.MaxItems
	}
	if override.Hex != nil {
		settings.Hex = *override.Hex
	}
	if override.Processor != nil {
		settings.Processor = append(Processors(nil), (*override.Processor)...)
	}
	return settings
}

// Package config loads the shardsync configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	perrors "github.com/pkg/errors"

	"github.com/huangjunwen/shardsync/shard"
)

var (
	// DefaultInterval is the default poll interval.
	DefaultInterval = 5 * time.Second

	// DefaultErrorBackoff is the default wait after a failed cycle.
	DefaultErrorBackoff = 10 * time.Second

	// DefaultLogLevel is the default value of Log.Level.
	DefaultLogLevel = "info"

	// DefaultLockName is the default value of Lock.Name.
	DefaultLockName = "shardsync.monitor"
)

// Duration is a time.Duration read from either a string ("5s") or a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration converts d.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the whole configuration document.
type Config struct {
	// Source is the authoritative store being polled.
	Source Conn `json:"source"`

	// Replica receives every change. Leave Driver empty to run without it.
	Replica Conn `json:"replica"`

	// Shards each receive the changes of their categories.
	Shards []Shard `json:"shards"`

	// Interval between two successful cycles.
	Interval Duration `json:"interval"`

	// ErrorBackoff is the wait after a failed cycle.
	ErrorBackoff Duration `json:"errorBackoff"`

	// ParallelWrites writes the shard concurrently with the replica.
	ParallelWrites bool `json:"parallelWrites"`

	Log Log `json:"log"`

	// MetricsAddr enables the /metrics and /healthz endpoints when set, e.g. ":9090".
	MetricsAddr string `json:"metricsAddr"`

	// Lock enables the singleton lock when set.
	Lock *Lock `json:"lock"`
}

// Shard is one shard store and the categories routed to it. Conn.Name is the shard name.
type Shard struct {
	Conn

	// Categories routed to this shard. Defaults to shard.DefaultCategories[Name].
	Categories []string `json:"categories"`
}

// Log configures the process logger.
type Log struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

// Lock configures the MySQL singleton lock that keeps a second monitor from running.
type Lock struct {
	Name string `json:"name"`
	Conn Conn   `json:"conn"`
}

// Load reads path, expands ${VAR} references from the environment, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse is Load without the file.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	dec := json.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.DisallowUnknownFields()
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, perrors.Wrap(err, "decode config")
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = Duration(DefaultInterval)
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = Duration(DefaultErrorBackoff)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Source.Name == "" {
		cfg.Source.Name = "source"
	}
	if cfg.Replica.Name == "" {
		cfg.Replica.Name = "replica"
	}
	for i := range cfg.Shards {
		sh := &cfg.Shards[i]
		if len(sh.Categories) == 0 {
			sh.Categories = shard.DefaultCategories[strings.ToLower(sh.Name)]
		}
	}
	if cfg.Lock != nil {
		if cfg.Lock.Name == "" {
			cfg.Lock.Name = DefaultLockName
		}
		if cfg.Lock.Conn.Name == "" {
			cfg.Lock.Conn.Name = "lock"
		}
	}
}

// Validate checks the configuration is complete.
func (cfg *Config) Validate() error {
	if !cfg.Source.Provisioned() {
		return perrors.New("config: source.driver is required")
	}
	if err := cfg.Source.Validate(); err != nil {
		return err
	}
	if err := cfg.Replica.Validate(); err != nil {
		return err
	}

	names := map[string]bool{cfg.Source.Name: true, cfg.Replica.Name: true}
	categories := map[string][]string{}
	for _, sh := range cfg.Shards {
		if sh.Name == "" {
			return perrors.New("config: shard without name")
		}
		if names[sh.Name] {
			return perrors.Errorf("config: duplicated store name %q", sh.Name)
		}
		names[sh.Name] = true
		if len(sh.Categories) == 0 {
			return perrors.Errorf("config: shard %q has no categories", sh.Name)
		}
		if err := sh.Conn.Validate(); err != nil {
			return err
		}
		categories[sh.Name] = sh.Categories
	}
	if _, err := shard.NewTable(categories); err != nil {
		return perrors.Wrap(err, "config")
	}

	if cfg.Lock != nil {
		if cfg.Lock.Conn.driver() != DriverMySQL {
			return perrors.New("config: lock.conn must be a mysql connection")
		}
		if err := cfg.Lock.Conn.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ShardTable builds the routing table of the configured shards.
func (cfg *Config) ShardTable() (*shard.Table, error) {
	categories := map[string][]string{}
	for _, sh := range cfg.Shards {
		categories[sh.Name] = sh.Categories
	}
	return shard.NewTable(categories)
}

// Package config implements the persistent key-value configuration store
// backed by ~/.pyjob/pyjob.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fsimkovic/pyjob/internal/core"
)

// Recognized store keys. All are optional.
const (
	KeyPlatform     = "platform"
	KeyProcesses    = "processes"
	KeyDirectory    = "directory"
	KeyQueue        = "queue"
	KeyRuntime      = "runtime"
	KeyShell        = "shell"
	KeyName         = "name"
	KeyMaxArraySize = "max_array_size"
	KeyEnvironment  = "environment"
	KeyCleanup      = "cleanup"
	KeyMetrics      = "metrics"
	KeyLogLevel     = "log_level"
)

// Config is a mapping persisted as a single YAML file. A process-wide lock bit
// causes mutating operations to fail with core.ErrDictLocked while set.
type Config struct {
	mu     sync.RWMutex
	data   map[string]interface{}
	file   string
	locked bool
}

var (
	defaultOnce sync.Once
	defaultCfg  *Config
)

// DefaultFile returns the path of the default configuration file.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pyjob", "pyjob.yml")
}

// Default returns the process-wide configuration, seeded once from
// ~/.pyjob/pyjob.yml. A missing or empty file yields an empty store.
func Default() *Config {
	defaultOnce.Do(func() {
		cfg, err := Read(DefaultFile())
		if err != nil {
			cfg = &Config{data: map[string]interface{}{}, file: DefaultFile()}
		}
		defaultCfg = cfg
	})
	return defaultCfg
}

// Read loads a configuration file. The file is created when absent.
func Read(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create configuration directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("cannot create configuration file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read configuration file %s: %w", path, err)
	}

	data := v.AllSettings()
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Config{data: data, file: path}, nil
}

// Get returns the raw value stored under key.
func (c *Config) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// GetString returns the value under key as a string, or "" when unset.
func (c *Config) GetString(key string) string {
	if v, ok := c.Get(key); ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// GetInt returns the value under key as an int, or 0 when unset or not an
// integer.
func (c *Config) GetInt(key string) int {
	v, ok := c.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetBool returns the value under key as a bool, or false when unset.
func (c *Config) GetBool(key string) bool {
	if v, ok := c.Get(key); ok {
		b, _ := v.(bool)
		return b
	}
	return false
}

// Set stores value under key.
func (c *Config) Set(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return core.ErrDictLocked
	}
	c.data[key] = value
	return nil
}

// Delete removes key from the store.
func (c *Config) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return core.ErrDictLocked
	}
	delete(c.data, key)
	return nil
}

// Lock sets the lock bit. Mutations fail until Unlock is called.
func (c *Config) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = true
}

// Unlock clears the lock bit.
func (c *Config) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = false
}

// Write persists the store to its backing file.
func (c *Config) Write() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("cannot serialise configuration: %w", err)
	}
	return os.WriteFile(c.file, out, 0o644)
}

// Decode maps the store onto a struct with mapstructure tags.
func (c *Config) Decode(out interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return mapstructure.WeakDecode(c.data, out)
}

package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Config holds the storage engine configuration.
type Config struct {
	// Type is the driver name: "local", "sharded", "rclone", "s3".
	Type string `json:"type" yaml:"type"`

	// BasePath is the root directory for file-based storage engines.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`

	// Options holds driver-specific configuration.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// String returns the option key as a string, or def when it is unset.
func (c *Config) String(key, def string) string {
	if v, ok := c.Options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// Int returns the option key as an int, or def when it is unset or not a
// number. Strings are parsed so that options coming from the environment
// work too.
func (c *Config) Int(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the option key as a bool, or def when it is unset.
func (c *Config) Bool(key string, def bool) bool {
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Factory is a function that creates an [Engine] from a [Config].
type Factory func(cfg *Config) (Engine, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a storage driver available by the provided name.
// This is typically called from the driver package's init() function.
// It panics if called twice with the same name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("store: driver %q already registered", name))
	}
	factories[name] = factory
}

// Drivers returns a sorted list of all registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a new [Engine] using the registered driver specified in cfg.Type.
func Open(cfg *Config) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: config must not be nil")
	}

	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("store: unknown driver %q (forgotten import?)", cfg.Type)
	}

	return factory(cfg)
}

// MustOpen is like [Open] but panics on error.
func MustOpen(cfg *Config) Engine {
	engine, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return engine
}

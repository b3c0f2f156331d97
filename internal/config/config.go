// Package config loads the server configuration from an optional YAML file
// overlaid with FSTREAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/store"
)

// Config holds all runtime configuration for the media server.
type Config struct {
	Addr string `yaml:"addr"`

	// ChunkSize and MaxUploadSize accept human sizes such as "64KiB".
	ChunkSize     Size `yaml:"chunkSize"`
	MaxUploadSize Size `yaml:"maxUploadSize"`

	// IOWorkers bounds the goroutines doing blocking file I/O.
	IOWorkers int `yaml:"ioWorkers"`

	// RestartEveryPhoto makes every Nth image upload answer restartNow=true
	// (0 disables it).
	RestartEveryPhoto int `yaml:"restartEveryPhoto"`

	Debug bool `yaml:"debug"`

	Storage store.Config `yaml:"storage"`
}

// Size is a byte count that unmarshals from "64KiB", "10MB" or a plain
// number.
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseSize(value.Value)
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// ParseSize parses a human size. Binary (KiB) and decimal-looking (KB)
// suffixes are both read as powers of 1024.
func ParseSize(v string) (int64, error) {
	n, err := units.RAMInBytes(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", v, err)
	}
	return n, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:              ":8080",
		ChunkSize:         fstream.DefaultChunkSize,
		MaxUploadSize:     4 << 30,
		IOWorkers:         16,
		RestartEveryPhoto: 25,
		Storage: store.Config{
			Type:     "local",
			BasePath: "./data",
		},
	}
}

// Load reads path (when not empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FSTREAM_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("FSTREAM_STORAGE_TYPE"); ok && v != "" {
		c.Storage.Type = v
	}
	if v, ok := lookup("FSTREAM_STORAGE_PATH"); ok && v != "" {
		c.Storage.BasePath = v
	}
	if v, ok := lookup("FSTREAM_CHUNK_SIZE"); ok && v != "" {
		n, err := ParseSize(v)
		if err != nil {
			return err
		}
		c.ChunkSize = Size(n)
	}
	if v, ok := lookup("FSTREAM_MAX_UPLOAD_SIZE"); ok && v != "" {
		n, err := ParseSize(v)
		if err != nil {
			return err
		}
		c.MaxUploadSize = Size(n)
	}
	if v, ok := lookup("FSTREAM_IO_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: FSTREAM_IO_WORKERS: %w", err)
		}
		c.IOWorkers = n
	}
	if v, ok := lookup("FSTREAM_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: FSTREAM_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

// Validate reports every invalid field, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.ChunkSize <= 0 || c.ChunkSize > 16<<20 {
		errs = append(errs, fmt.Errorf("chunkSize %s out of range (0, 16MiB]", c.ChunkSize))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("maxUploadSize must be positive"))
	}
	if c.IOWorkers < 1 {
		errs = append(errs, fmt.Errorf("ioWorkers must be >= 1, got %d", c.IOWorkers))
	}
	if c.RestartEveryPhoto < 0 {
		errs = append(errs, errors.New("restartEveryPhoto must not be negative"))
	}
	if c.Storage.Type == "" {
		errs = append(errs, errors.New("storage.type must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

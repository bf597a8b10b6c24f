// Package config provides configuration loading and validation for Regia.
// Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a Regia heap simulation.
type Config struct {
	Heap          HeapConfig          `yaml:"heap"`
	Workers       WorkersConfig       `yaml:"workers"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type HeapConfig struct {
	NumRegions     int   `yaml:"numRegions" env:"REGIA_NUM_REGIONS"`
	RegionBytes    int64 `yaml:"regionBytes" env:"REGIA_REGION_BYTES"`
	YoungRegions   int   `yaml:"youngRegions" env:"REGIA_YOUNG_REGIONS"`
	OldCSetRegions int   `yaml:"oldCsetRegions" env:"REGIA_OLD_CSET_REGIONS"`
}

type WorkersConfig struct {
	NumWorkers int `yaml:"numWorkers" env:"REGIA_NUM_WORKERS"`
}

type CleanupConfig struct {
	ChunksPerRegion    int     `yaml:"chunksPerRegion" env:"REGIA_CHUNKS_PER_REGION"`
	ChunksPerWorker    int     `yaml:"chunksPerWorker" env:"REGIA_CHUNKS_PER_WORKER"`
	ThreadsPerWorker   int     `yaml:"threadsPerWorker" env:"REGIA_THREADS_PER_WORKER"`
	ResizeAllocBuffers bool    `yaml:"resizeAllocBuffers" env:"REGIA_RESIZE_ALLOC_BUFFERS"`
	EagerReclaim       bool    `yaml:"eagerReclaim" env:"REGIA_EAGER_RECLAIM"`
	FailureRate        float64 `yaml:"failureRate" env:"REGIA_FAILURE_RATE"`
}

type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled" env:"REGIA_SNAPSHOT_ENABLED"`
	Path    string `yaml:"path" env:"REGIA_SNAPSHOT_PATH"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"REGIA_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"REGIA_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"REGIA_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Heap: HeapConfig{
			NumRegions:     256,
			RegionBytes:    4 * 1024 * 1024, // 4MB
			YoungRegions:   24,
			OldCSetRegions: 4,
		},
		Workers: WorkersConfig{
			NumWorkers: 8,
		},
		Cleanup: CleanupConfig{
			ChunksPerRegion:    16,
			ChunksPerWorker:    16,
			ThreadsPerWorker:   250,
			ResizeAllocBuffers: true,
			EagerReclaim:       true,
			FailureRate:        0.1,
		},
		Snapshot: SnapshotConfig{
			Enabled: false,
			Path:    "regia-snapshot.bin",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the default config with environment overrides applied.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a YAML file, then applies
// environment overrides on top.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Heap.NumRegions <= 0 {
		return fmt.Errorf("heap.numRegions must be positive, got %d", c.Heap.NumRegions)
	}
	if c.Heap.RegionBytes <= 0 || c.Heap.RegionBytes%4096 != 0 {
		return fmt.Errorf("heap.regionBytes must be a positive multiple of 4096, got %d", c.Heap.RegionBytes)
	}
	if c.Heap.YoungRegions < 0 || c.Heap.YoungRegions > c.Heap.NumRegions {
		return fmt.Errorf("heap.youngRegions %d out of range for %d regions", c.Heap.YoungRegions, c.Heap.NumRegions)
	}
	if c.Heap.OldCSetRegions < 0 || c.Heap.YoungRegions+c.Heap.OldCSetRegions > c.Heap.NumRegions {
		return fmt.Errorf("heap.oldCsetRegions %d does not fit in %d regions with %d young",
			c.Heap.OldCSetRegions, c.Heap.NumRegions, c.Heap.YoungRegions)
	}
	if c.Workers.NumWorkers <= 0 {
		return fmt.Errorf("workers.numWorkers must be positive, got %d", c.Workers.NumWorkers)
	}
	if c.Cleanup.ChunksPerRegion <= 0 {
		return fmt.Errorf("cleanup.chunksPerRegion must be positive, got %d", c.Cleanup.ChunksPerRegion)
	}
	if c.Cleanup.ChunksPerWorker <= 0 {
		return fmt.Errorf("cleanup.chunksPerWorker must be positive, got %d", c.Cleanup.ChunksPerWorker)
	}
	if c.Cleanup.ThreadsPerWorker <= 0 {
		return fmt.Errorf("cleanup.threadsPerWorker must be positive, got %d", c.Cleanup.ThreadsPerWorker)
	}
	if c.Cleanup.FailureRate < 0 || c.Cleanup.FailureRate > 1 {
		return fmt.Errorf("cleanup.failureRate must be in [0,1], got %f", c.Cleanup.FailureRate)
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.logLevel must be one of debug/info/warn/error, got %q", c.Observability.LogLevel)
	}
	return nil
}

// applyEnvOverrides walks the config struct and overrides any field whose
// env tag names a set environment variable.
func applyEnvOverrides(cfg *Config) error {
	return applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envName := t.Field(i).Tag.Get("env")
		if envName == "" {
			continue
		}
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
			field.SetInt(n)
		case reflect.Float64:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
			field.SetFloat(f)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
			field.SetBool(b)
		default:
			return fmt.Errorf("%s: unsupported field kind %s", envName, field.Kind())
		}
	}
	return nil
}

// Package config provides YAML-based configuration for the warehouse
// server and pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	Schemas   SchemasConfig   `yaml:"schemas"`
	Aggregate AggregateConfig `yaml:"aggregate"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
}

// PathsConfig names every location the pipeline touches.
type PathsConfig struct {
	// ExperimentalDir holds the experiment template workbooks.
	ExperimentalDir string `yaml:"experimental_dir"`
	// SampleFile is the field sample-metadata file (csv/xlsx).
	SampleFile string `yaml:"sample_file"`
	// SequenceDir is the root of the sequencing-output folder tree.
	SequenceDir string `yaml:"sequence_dir"`
	// OutputDir receives exports, run reports and the dataset store.
	OutputDir string `yaml:"output_dir"`
	// DestinationDir is the canonical aggregation tree root.
	DestinationDir string `yaml:"destination_dir"`
	// TargetsFile is the target descriptor YAML.
	TargetsFile string `yaml:"targets_file"`
}

// SchemasConfig names the schema descriptor file per source kind.
type SchemasConfig struct {
	Experimental string `yaml:"experimental"`
	Reaction     string `yaml:"reaction"`
	Sample       string `yaml:"sample"`
	Sequence     string `yaml:"sequence"`
}

// AggregateConfig tunes the aggregation pass.
type AggregateConfig struct {
	// AmbiguousPolicy is "fail" or "newest".
	AmbiguousPolicy string `yaml:"ambiguous_policy"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8089,
			BindAddress: "0.0.0.0",
		},
		Paths: PathsConfig{
			OutputDir: "./data/output",
		},
		Aggregate: AggregateConfig{
			AmbiguousPolicy: "fail",
		},
	}
}

// Load reads configuration from a YAML file, layering it over defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureDirectories creates the writable directories the pipeline needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.DestinationDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatasetPath is where the DuckDB dataset file lives.
func (c *Config) DatasetPath() string {
	return filepath.Join(c.Paths.OutputDir, "dataset.duckdb")
}

// ExportPath is where the canonical delimited export lands.
func (c *Config) ExportPath() string {
	return filepath.Join(c.Paths.OutputDir, "reconciled.csv")
}

// ReportPath is where the structured run report lands.
func (c *Config) ReportPath() string {
	return filepath.Join(c.Paths.OutputDir, "run_report.json")
}

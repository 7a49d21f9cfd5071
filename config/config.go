// Package config loads the dashboard configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root of config.yaml.
type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	} `yaml:"http"`
	Results struct {
		Dir        string   `yaml:"dir"`
		Extensions []string `yaml:"extensions"`
		CacheSize  int      `yaml:"cache_size"`
		Watch      bool     `yaml:"watch"`
		Strict     bool     `yaml:"strict"`
	} `yaml:"results"`
	Dataset struct {
		RowLimit int    `yaml:"row_limit"`
		HeadRows int    `yaml:"head_rows"`
		Encoding string `yaml:"encoding"`
	} `yaml:"dataset"`
	Log Log `yaml:"log"`
}

// Log configures the zap logger and optional rotated log file.
type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Http.Port = 8501
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Http.MaxUploadBytes = 10 << 20
	c.Results.Dir = "pickle_files"
	c.Results.Extensions = []string{".json", ".yaml", ".yml"}
	c.Results.CacheSize = 8
	c.Results.Watch = true
	c.Dataset.HeadRows = 5
	c.Dataset.Encoding = "utf-8"
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return &c
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadOrDefault behaves like Load but falls back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.Http.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.max_upload_bytes must be positive")
	}
	if c.Results.Dir == "" {
		return fmt.Errorf("results.dir cannot be empty")
	}
	if c.Dataset.RowLimit < 0 {
		return fmt.Errorf("dataset.row_limit cannot be negative")
	}
	if c.Dataset.HeadRows <= 0 {
		return fmt.Errorf("dataset.head_rows must be positive")
	}
	return nil
}

// Copyright 2025 The Scriptorium Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads application settings from a TOML file. S3 credentials
// are never stored in the file; they come from the environment (optionally
// via a .env file).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvConfigFile names the environment variable that overrides the default
// config file location.
const EnvConfigFile = "CONFIG_FILE"

// DefaultConfigFile is used when CONFIG_FILE is unset.
const DefaultConfigFile = "scriptorium.toml"

// AppConfig holds application-level settings.
type AppConfig struct {
	Version      string   `toml:"version"`
	ClientURL    string   `toml:"client_url"`
	AppName      string   `toml:"app_name"`
	RootPath     string   `toml:"root_path"`
	BatchName    string   `toml:"batch_name"`
	MegadocTypes []string `toml:"megadoc_types"`
}

// DBConfig holds settings for the embedded SQLite database.
type DBConfig struct {
	SQLPath   string `toml:"sql_path"`
	Retries   int    `toml:"retries"`
	BatchSize int    `toml:"batch_size"`
}

// S3Config holds settings for the S3-compatible object store. URL is the
// public CDN base; Space is the bucket name.
type S3Config struct {
	URL      string `toml:"url"`
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
	Space    string `toml:"space"`

	AccessKey string `toml:"-"`
	SecretKey string `toml:"-"`
}

// LoggingConfig is passed through to the logger setup.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}

// Config is the root of the application configuration.
type Config struct {
	App     AppConfig     `toml:"app"`
	DB      DBConfig      `toml:"db"`
	S3      S3Config      `toml:"s3"`
	Logging LoggingConfig `toml:"logging"`

	// OpenFileLimit caps concurrently open files during ingest and megadoc
	// builds.
	OpenFileLimit int `toml:"open_file_limit"`
}

// DataPath returns the absolute base path under which all batch data lives.
func (c *Config) DataPath() string {
	return filepath.Join(c.App.RootPath, "data")
}

// IndexPath returns the absolute path of the full-text index directory for
// the current batch.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataPath(), c.App.BatchName, "index")
}

// MegadocPath returns the relative megadoc output directory for the current
// batch. Megadoc paths are stored relative so the archive stays portable.
func (c *Config) MegadocPath() string {
	return filepath.Join(c.App.BatchName, "megadocs")
}

// BatchPath returns the absolute path of the current import batch.
func (c *Config) BatchPath() string {
	return filepath.Join(c.DataPath(), c.App.BatchName)
}

// Load reads configuration from path. An empty path falls back to the
// CONFIG_FILE environment variable, then to scriptorium.toml in the working
// directory. A .env file, if present, is folded into the environment before
// S3 credentials are read.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		path = DefaultConfigFile
	}

	// Missing .env is fine; credentials may already be in the environment.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.S3.AccessKey = os.Getenv("S3_KEY")
	cfg.S3.SecretKey = os.Getenv("S3_SECRET")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.AppName == "" {
		c.App.AppName = "scriptorium"
	}
	if c.App.RootPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.App.RootPath = home
		} else {
			c.App.RootPath = "."
		}
	}
	if c.App.BatchName == "" {
		c.App.BatchName = "00"
	}
	if len(c.App.MegadocTypes) == 0 {
		c.App.MegadocTypes = []string{".txt", ".docx"}
	}
	if c.DB.SQLPath == "" {
		c.DB.SQLPath = filepath.Join(c.App.RootPath, "scriptorium.db")
	}
	if c.DB.Retries == 0 {
		c.DB.Retries = 10
	}
	if c.DB.BatchSize == 0 {
		c.DB.BatchSize = 10000
	}
	if c.OpenFileLimit == 0 {
		c.OpenFileLimit = 256
	}

	// Keys ending _path are filesystem paths; normalize them.
	c.App.RootPath = filepath.Clean(c.App.RootPath)
	c.DB.SQLPath = filepath.Clean(c.DB.SQLPath)
}

func (c *Config) validate() error {
	if c.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}
	if c.App.ClientURL == "" {
		return fmt.Errorf("app.client_url is required")
	}
	if c.S3.URL == "" || c.S3.Endpoint == "" || c.S3.Region == "" || c.S3.Space == "" {
		return fmt.Errorf("s3.url, s3.endpoint, s3.region, and s3.space are required")
	}
	return nil
}

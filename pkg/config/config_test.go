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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[app]
version = "2.0.0"
client_url = "https://archive.example.com"
root_path = "/srv/archive"
batch_name = "01"
megadoc_types = [".txt", ".docx"]

[db]
sql_path = "/srv/archive/archive.db"
retries = 3
batch_size = 500

[s3]
url = "https://cdn.example.com"
endpoint = "https://nyc3.digitaloceanspaces.com"
region = "nyc3"
space = "archive"

[logging]
level = "debug"
file = "/var/log/scriptorium.log"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptorium.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("S3_KEY", "test-key")
	t.Setenv("S3_SECRET", "test-secret")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", cfg.App.Version)
	assert.Equal(t, "01", cfg.App.BatchName)
	assert.Equal(t, 3, cfg.DB.Retries)
	assert.Equal(t, 500, cfg.DB.BatchSize)
	assert.Equal(t, "test-key", cfg.S3.AccessKey)
	assert.Equal(t, "test-secret", cfg.S3.SecretKey)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, filepath.Join("/srv/archive", "data"), cfg.DataPath())
	assert.Equal(t, filepath.Join("/srv/archive", "data", "01", "index"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("01", "megadocs"), cfg.MegadocPath())
}

func TestLoadDefaults(t *testing.T) {
	minimal := `
[app]
version = "1.0.0"
client_url = "https://example.com"

[s3]
url = "https://cdn.example.com"
endpoint = "https://s3.example.com"
region = "us-east-1"
space = "bucket"
`
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "scriptorium", cfg.App.AppName)
	assert.Equal(t, "00", cfg.App.BatchName)
	assert.Equal(t, []string{".txt", ".docx"}, cfg.App.MegadocTypes)
	assert.Equal(t, 10, cfg.DB.Retries)
	assert.Equal(t, 10000, cfg.DB.BatchSize)
	assert.Equal(t, 256, cfg.OpenFileLimit)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(writeConfig(t, `[app]
version = "1.0.0"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_url")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "not [valid toml"))
	assert.Error(t, err)
}

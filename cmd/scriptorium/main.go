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

// Command scriptorium manages an OCR document archive.
//
// Usage:
//
//	scriptorium init-db --config scriptorium.toml
//	scriptorium import-albums album1 album2
//	scriptorium search "liberation army"
//	scriptorium serve --port 8000
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/scriptoriumhq/scriptorium/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version      VersionCmd `cmd:"" help:"Show version information."`
	InitDB       InitDBCmd  `cmd:"" name:"init-db" help:"Create a fresh, empty database."`
	ImportAlbums ImportCmd  `cmd:"" name:"import-albums" help:"Import albums of OCR output and rebuild the index."`
	Search       SearchCmd  `cmd:"" help:"Run a search and build its megadocs."`
	Serve        ServeCmd   `cmd:"" help:"Start the HTTP API server."`
	Debug        DebugCmd   `cmd:"" help:"Print archive totals and configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

func (c *CLI) initLogger() (func(), error) {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if c.LogFile != "" {
		file, closeFn, err := logger.OpenLogFile(c.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFn
	}

	logger.Init(level, output, c.LogFormat)
	return cleanup, nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("scriptorium"),
		kong.Description("OCR document archive: import, search, megadocs."),
		kong.UsageOnError(),
	)

	cleanup, err := cli.initLogger()
	ctx.FatalIfErrorf(err)
	defer cleanup()

	ctx.FatalIfErrorf(ctx.Run(cli))
}

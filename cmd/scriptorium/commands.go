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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/pipeline"
	"github.com/scriptoriumhq/scriptorium/pkg/server"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
	"github.com/scriptoriumhq/scriptorium/pkg/upload"
)

// setup loads the config and opens the database. Callers own Close.
func setup(cli *CLI) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.DB.SQLPath, cfg.DB.Retries)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// buildUploader returns nil when no credentials are present, leaving
// artifacts on disk instead of failing every search.
func buildUploader(st *store.Store, cfg *config.Config) pipeline.MegadocUploader {
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		slog.Warn("S3 credentials not set, megadoc uploads disabled")
		return nil
	}
	up, err := upload.New(st, cfg)
	if err != nil {
		slog.Warn("Failed to create uploader, megadoc uploads disabled", "error", err)
		return nil
	}
	return up
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("scriptorium version %s\n", version)
	return nil
}

// InitDBCmd creates a fresh, empty database, replacing any existing one.
type InitDBCmd struct {
	Force bool `help:"Do not ask for confirmation."`
}

func (c *InitDBCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	if !c.Force {
		if _, err := os.Stat(cfg.DB.SQLPath); err == nil {
			fmt.Printf("This will erase the database at %s. Continue? [y/N] ", cfg.DB.SQLPath)
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				return fmt.Errorf("aborted")
			}
		}
	}

	st, err := store.Init(cfg.DB.SQLPath, cfg.DB.Retries)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Database initialized at %s\n", cfg.DB.SQLPath)
	return nil
}

// ImportCmd imports albums and rebuilds the corpus and index. Without
// arguments every album under the batch json path is imported.
type ImportCmd struct {
	Albums []string `arg:"" optional:"" help:"Album directory names under the batch json path; defaults to all."`
}

func (c *ImportCmd) Run(cli *CLI) error {
	cfg, st, err := setup(cli)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	p := pipeline.New(st, cfg, nil)
	if err := p.StartLoad(ctx, c.Albums); err != nil {
		return err
	}

	total, err := st.TotalDocuments(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Import done, %d documents total, took %s\n",
		total, time.Since(start).Round(time.Second))
	return nil
}

// SearchCmd runs a search synchronously through megadoc build and upload.
type SearchCmd struct {
	Query string `arg:"" help:"Search string; supports quoted phrases and fuzzy terms (word~1)."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	cfg, st, err := setup(cli)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.New(st, cfg, buildUploader(st, cfg))
	sr, err := p.StartSearch(ctx, c.Query)
	if err != nil {
		return err
	}
	if err := p.ProcessSearch(ctx, sr); err != nil {
		return err
	}

	count, err := st.SearchDocumentCount(ctx, sr.GUID)
	if err != nil {
		return err
	}
	fmt.Printf("Search %s matched %d documents\n", sr.GUID, count)

	mds, err := st.MegadocsForSearch(ctx, sr.GUID)
	if err != nil {
		return err
	}
	for _, md := range mds {
		location := md.URL
		if location == "" {
			location = md.Path
		}
		fmt.Printf("  %-6s %s (%s)\n", md.Filetype, location, md.Status)
	}
	return nil
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Port int `help:"Port to listen on." default:"8000"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, st, err := setup(cli)
	if err != nil {
		return err
	}
	defer st.Close()

	// A log file from config makes the /log endpoint useful; the CLI flag
	// takes precedence when both are set.
	if cli.LogFile == "" && cfg.Logging.File != "" {
		cli.LogFile = cfg.Logging.File
		if cfg.Logging.Level != "" {
			cli.LogLevel = cfg.Logging.Level
		}
		if cfg.Logging.Format != "" {
			cli.LogFormat = cfg.Logging.Format
		}
		cleanup, err := cli.initLogger()
		if err != nil {
			return err
		}
		defer cleanup()
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.New(st, cfg, buildUploader(st, cfg))
	srv := server.New(st, cfg, p)
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", c.Port))
}

// DebugCmd prints archive totals and the effective configuration.
type DebugCmd struct{}

func (c *DebugCmd) Run(cli *CLI) error {
	cfg, st, err := setup(cli)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("config\n")
	fmt.Printf("  data path:    %s\n", cfg.DataPath())
	fmt.Printf("  batch:        %s\n", cfg.App.BatchName)
	fmt.Printf("  index path:   %s\n", cfg.IndexPath())
	fmt.Printf("  database:     %s\n", cfg.DB.SQLPath)
	fmt.Printf("  megadocs:     %v\n", cfg.App.MegadocTypes)

	scans, err := st.TotalScans(ctx)
	if err != nil {
		return err
	}
	docs, err := st.TotalDocuments(ctx)
	if err != nil {
		return err
	}
	corpuses, err := st.TotalCorpuses(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("archive\n")
	fmt.Printf("  scans:        %d\n", scans)
	fmt.Printf("  documents:    %d\n", docs)
	fmt.Printf("  corpuses:     %d\n", corpuses)

	if corpus, err := st.GetLatestCorpus(ctx); err == nil {
		fmt.Printf("  latest:       %s (%d documents, checksum %s)\n",
			corpus.GUID, corpus.DocumentCount, corpus.Checksum)
	}
	return nil
}

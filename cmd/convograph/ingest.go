// Copyright 2025 Kadir Pekel
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
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/convograph/pkg/runtime"
)

// IngestCmd chunks plain-text files and indexes them under a knowledge
// source. Text must already be extracted.
type IngestCmd struct {
	Source      string   `required:"" help:"Knowledge source (collection) to index into."`
	Files       []string `arg:"" name:"file" help:"Text files to index." type:"existingfile"`
	Parallelism int      `help:"Files indexed concurrently." default:"4"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if !cfg.Knowledge.Enabled() {
		return fmt.Errorf("knowledge is not configured: set knowledge.embedder and knowledge.vector_store")
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer rt.Close()

	indexer, err := rt.Indexer()
	if err != nil {
		return err
	}
	indexer.Parallelism = c.Parallelism

	start := time.Now()
	n, err := indexer.IndexFiles(ctx, c.Source, c.Files)
	if err != nil {
		return fmt.Errorf("failed to index files: %w", err)
	}
	slog.Info("Ingestion complete", "source", c.Source, "files", len(c.Files), "chunks", n, "duration", time.Since(start))
	fmt.Printf("Indexed %d chunks from %d files into %q\n", n, len(c.Files), c.Source)
	return nil
}

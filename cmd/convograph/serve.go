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

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/convograph/pkg/auth"
	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/runtime"
	"github.com/kadirpekel/convograph/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"Address to bind (overrides config)."`
	Port  int    `help:"Port to listen on (overrides config)."`
	Watch bool   `help:"Reload logger settings when the config source changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := loadConfig(ctx, cli, config.WithOnChange(func(next *config.Config) {
		applyLoggerConfig(cli, next.Logger)
		slog.Info("Logger settings reloaded; other changes apply on restart")
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("Failed to close runtime", "error", err)
		}
	}()

	opts := []server.Option{server.WithObservability(rt.Observability())}
	validator, err := auth.NewValidatorFromConfig(ctx, cfg.Server.Auth)
	if err != nil {
		return err
	}
	if validator != nil {
		defer validator.Close()
		opts = append(opts, server.WithAuthValidator(validator))
	}
	srv := server.New(&cfg.Server, rt.Service(), opts...)

	agents, err := rt.Service().ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}
	slog.Info("convograph server ready",
		"address", cfg.Server.Address(),
		"agents", len(agents),
		"sessions", cfg.Sessions.Backend,
		"knowledge", cfg.Knowledge.Enabled(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	if c.Watch && loader != nil {
		g.Go(func() error {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("config watch failed: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}

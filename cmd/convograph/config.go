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
	"os"

	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/config/provider"
)

const defaultConfigFile = "convograph.yaml"

// loadConfig reads the config selected by the global flags. A missing
// --config falls back to ./convograph.yaml, then to built-in defaults.
// The returned loader is nil for built-in defaults.
func loadConfig(ctx context.Context, cli *CLI, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	path := cli.Config
	if path == "" && cli.ConfigSource == string(provider.TypeFile) {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			cfg, err := config.Default()
			if err != nil {
				return nil, nil, err
			}
			slog.Info("No config file found, using defaults")
			applyLoggerConfig(cli, cfg.Logger)
			return cfg, nil, nil
		}
		path = defaultConfigFile
	}

	typ, err := provider.ParseType(cli.ConfigSource)
	if err != nil {
		return nil, nil, err
	}
	p, err := provider.New(provider.ProviderConfig{Type: typ, Path: path, Endpoints: cli.ConfigEndpoints})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config provider: %w", err)
	}

	loader := config.NewLoader(p, opts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		_ = loader.Close()
		return nil, nil, err
	}

	applyLoggerConfig(cli, cfg.Logger)
	slog.Info("Loaded configuration", "source", typ, "path", path)
	return cfg, loader, nil
}

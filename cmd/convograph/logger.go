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
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/logger"
)

// logOutput is where the process logger writes; set once by initLogger.
var logOutput io.Writer = os.Stderr

// initLogger installs the process logger from CLI flags, which already
// fold in the LOG_* environment variables. Empty values keep the defaults.
func initLogger(level, file, format string) (func(), error) {
	cfg := config.LoggerConfig{Level: level, File: file, Format: format}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cleanup := func() {}
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logOutput, cleanup = f, closeFn
	}

	logger.Init(logger.ParseLevel(cfg.Level), logOutput, cfg.Format)
	return cleanup, nil
}

// applyLoggerConfig re-installs the logger with the config file's level
// and format for every value the command line left unset. The output
// stays where initLogger put it.
func applyLoggerConfig(cli *CLI, cfg config.LoggerConfig) {
	level, format := cli.LogLevel, cli.LogFormat
	if level == "" {
		level = cfg.Level
	}
	if format == "" {
		format = cfg.Format
	}
	logger.Init(logger.ParseLevel(level), logOutput, format)
}

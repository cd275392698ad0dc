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

package config

import (
	"fmt"
	"time"
)

// StorageBackend identifies a storage backend.
type StorageBackend string

const (
	StorageBackendInMemory  StorageBackend = "inmemory"
	StorageBackendSQL       StorageBackend = "sql"
	StorageBackendDirectory StorageBackend = "directory"
)

// SessionsConfig selects the session state store.
type SessionsConfig struct {
	// Backend is inmemory (default) or sql.
	Backend StorageBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=inmemory,enum=sql,default=inmemory"`

	// Database references an entry in databases. Required for sql.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

func (c *SessionsConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendInMemory
	}
}

func (c *SessionsConfig) Validate() error {
	switch c.Backend {
	case StorageBackendInMemory, StorageBackendSQL:
	default:
		return fmt.Errorf("invalid backend %q (valid: inmemory, sql)", c.Backend)
	}
	if c.Backend == StorageBackendSQL && c.Database == "" {
		return fmt.Errorf("database reference is required when backend is sql")
	}
	if c.Database != "" && c.Backend != StorageBackendSQL {
		return fmt.Errorf("database reference requires backend to be sql")
	}
	return nil
}

// IsSQL reports whether sessions are persisted in SQL.
func (c *SessionsConfig) IsSQL() bool {
	return c.Backend == StorageBackendSQL
}

// AgentsConfig selects where agent graphs are loaded from.
type AgentsConfig struct {
	// Backend is inmemory, directory (default) or sql.
	Backend StorageBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=inmemory,enum=directory,enum=sql,default=directory"`

	// Path is the directory of graph documents for the directory backend.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"default=./agents"`

	// Watch reloads graphs when files in Path change.
	Watch *bool `yaml:"watch,omitempty" json:"watch,omitempty" jsonschema:"default=true"`

	// Database references an entry in databases. Required for sql.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// CacheTTL bounds how long a graph read from sql is reused.
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty" jsonschema:"type=string,default=30s"`
}

func (c *AgentsConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendDirectory
	}
	if c.Backend == StorageBackendDirectory && c.Path == "" {
		c.Path = "./agents"
	}
	if c.Watch == nil {
		c.Watch = BoolPtr(true)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
}

func (c *AgentsConfig) Validate() error {
	switch c.Backend {
	case StorageBackendInMemory:
	case StorageBackendDirectory:
		if c.Path == "" {
			return fmt.Errorf("path is required when backend is directory")
		}
	case StorageBackendSQL:
		if c.Database == "" {
			return fmt.Errorf("database reference is required when backend is sql")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: inmemory, directory, sql)", c.Backend)
	}
	if c.Database != "" && c.Backend != StorageBackendSQL {
		return fmt.Errorf("database reference requires backend to be sql")
	}
	return nil
}

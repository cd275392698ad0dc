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
	"net/url"
	"sort"
	"strings"
)

// DatabaseConfig describes a SQL connection.
// Supported drivers are postgres, mysql and sqlite.
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver" jsonschema:"title=Driver,enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3,default=sqlite"`

	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"description=Server hostname (not used by sqlite)"`

	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name, or the file path for sqlite.
	Database string `yaml:"database" json:"database"`

	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty" jsonschema:"description=PostgreSQL sslmode"`

	// Params are appended to the DSN as driver options.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`

	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"minimum=1,default=25"`

	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"minimum=1,default=5"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Driver == "mysql" {
		if c.Params == nil {
			c.Params = map[string]string{}
		}
		// Timestamps are scanned into time.Time.
		if _, ok := c.Params["parseTime"]; !ok {
			c.Params["parseTime"] = "true"
		}
	}
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite", "sqlite3":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if !c.IsSQLite() && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("connection limits must be non-negative")
	}
	return nil
}

// IsSQLite reports whether the driver is sqlite.
func (c *DatabaseConfig) IsSQLite() bool {
	return c.Driver == "sqlite" || c.Driver == "sqlite3"
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		parts := []string{
			fmt.Sprintf("host=%s", c.Host),
			fmt.Sprintf("port=%d", c.Port),
			fmt.Sprintf("dbname=%s", c.Database),
		}
		if c.Username != "" {
			parts = append(parts, "user="+c.Username)
		}
		if c.Password != "" {
			parts = append(parts, "password="+c.Password)
		}
		if c.SSLMode != "" {
			parts = append(parts, "sslmode="+c.SSLMode)
		}
		for _, k := range sortedKeys(c.Params) {
			parts = append(parts, k+"="+c.Params[k])
		}
		return strings.Join(parts, " ")
	case "mysql":
		dsn := fmt.Sprintf("tcp(%s:%d)/%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn = fmt.Sprintf("%s:%s@%s", c.Username, c.Password, dsn)
		}
		return dsn + c.query()
	case "sqlite", "sqlite3":
		return c.Database + c.query()
	default:
		return ""
	}
}

func (c *DatabaseConfig) query() string {
	if len(c.Params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("?")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(c.Params[k]))
	}
	return b.String()
}

// DriverName is the name registered with database/sql.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect is the normalized SQL dialect: postgres, mysql or sqlite.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == "sqlite3" {
		return "sqlite"
	}
	return c.Driver
}

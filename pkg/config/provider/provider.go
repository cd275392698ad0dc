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

// Package provider abstracts where raw configuration bytes come from.
//
// A local file is the default. Consul KV, etcd and ZooKeeper are supported
// for deployments that keep agent runtime settings in a shared store; all of
// them can signal changes so the server reloads without a restart.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Type identifies the config source.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// DefaultDialTimeout bounds the initial connection to remote stores.
const DefaultDialTimeout = 10 * time.Second

// ParseType converts a string to a Type. Empty means file.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider loads raw config bytes and optionally signals changes.
// Implementations must be safe for concurrent use.
type Provider interface {
	Type() Type

	// Load reads the current config document.
	Load(ctx context.Context) ([]byte, error)

	// Watch returns a channel that receives a value after each change.
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Type Type

	// Path is a file path for file sources, or a key/znode for remote ones.
	Path string

	// Endpoints of the remote store.
	Endpoints []string
}

// New creates the Provider described by opts.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(opts.Endpoints, opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(opts.Endpoints, opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(opts.Endpoints, opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

// notify performs a non-blocking send; a pending signal already covers it.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

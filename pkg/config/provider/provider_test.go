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

package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{
		"":          TypeFile,
		"file":      TypeFile,
		"Consul":    TypeConsul,
		"etcd":      TypeEtcd,
		"zk":        TypeZookeeper,
		"zookeeper": TypeZookeeper,
	} {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseType("s3")
	assert.Error(t, err)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(ProviderConfig{Type: TypeFile})
	assert.Error(t, err)
}

func TestNew_ZookeeperRequiresEndpoints(t *testing.T) {
	_, err := New(ProviderConfig{Type: TypeZookeeper, Path: "/convograph"})
	assert.Error(t, err)
}

func TestFileProvider_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(data), "9000")
	assert.Equal(t, TypeFile, p.Type())
}

func TestFileProvider_LoadMissing(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestFileProvider_WatchSignalsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("expected change notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileProvider_WatchAfterClose(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "c.yaml"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Watch(context.Background())
	assert.Error(t, err)
}

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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_SimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, "simple")

	l.Info("Session started", "session_id", "s1")
	l.Debug("hidden")

	assert.Equal(t, "INFO Session started session_id=s1\n", buf.String())
}

func TestNew_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelDebug, &buf, "simple").With("agent_id", "a1").WithGroup("node")

	l.Warn("Step", "id", "n1")

	assert.Equal(t, "WARN Step agent_id=a1 node.id=n1\n", buf.String())
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, "json")

	l.Error("Webhook failed", "status", 500)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Webhook failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.EqualValues(t, 500, rec["status"])
}

func TestFromModule(t *testing.T) {
	assert.False(t, fromModule(0))
}

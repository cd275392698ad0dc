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

// Package server exposes engine.Service over HTTP.
//
//	POST   /v1/agents/{agentID}/sessions     start a session
//	GET    /v1/agents                        list agents
//	GET    /v1/agents/{agentID}              graph summary
//	POST   /v1/sessions/{sessionID}/messages post a user message
//	GET    /v1/sessions/{sessionID}          session state
//	GET    /v1/sessions/{sessionID}/history  conversation so far
//	DELETE /v1/sessions/{sessionID}          close the session
//	GET    /health
//	GET    /metrics                          when metrics are enabled
//	GET    /debug/spans                      when the debug exporter is enabled
package server

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

package runtime

import (
	"context"
	"fmt"

	"github.com/kadirpekel/convograph/pkg/engine"
)

// Conversation drives one session in process, as the chat command does.
type Conversation struct {
	service   *engine.Service
	agentID   string
	sessionID string
	last      *engine.Reply
}

// NewConversation binds a conversation to agentID without starting it.
func (r *Runtime) NewConversation(agentID string) *Conversation {
	return &Conversation{service: r.service, agentID: agentID}
}

// Start creates the session and returns the opening messages.
func (c *Conversation) Start(ctx context.Context, vars map[string]string) (*engine.Reply, error) {
	if c.sessionID != "" {
		return nil, fmt.Errorf("conversation already started: %s", c.sessionID)
	}
	rep, err := c.service.CreateSession(ctx, c.agentID, vars)
	if err != nil {
		return nil, err
	}
	c.sessionID = rep.SessionID
	c.last = rep
	return rep, nil
}

// Send posts text and returns the agent's answer.
func (c *Conversation) Send(ctx context.Context, text string) (*engine.Reply, error) {
	if c.sessionID == "" {
		return nil, fmt.Errorf("conversation not started")
	}
	rep, err := c.service.PostMessage(ctx, c.sessionID, text)
	if err != nil {
		return nil, err
	}
	c.last = rep
	return rep, nil
}

// Done reports whether the session can take no more input.
func (c *Conversation) Done() bool {
	return c.last != nil && !c.last.Suspended
}

func (c *Conversation) SessionID() string { return c.sessionID }

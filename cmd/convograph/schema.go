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
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/graph"
)

// SchemaCmd prints a JSON Schema to stdout, for editors and form builders.
type SchemaCmd struct {
	Graph   bool `help:"Emit the agent graph schema instead of the config schema."`
	Compact bool `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	schema := c.reflect()

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}

func (c *SchemaCmd) reflect() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	if c.Graph {
		schema = reflector.Reflect(&graph.Document{})
		schema.ID = "https://convograph.dev/schemas/agent.json"
		schema.Title = "convograph agent graph"
	} else {
		schema = reflector.Reflect(&config.Config{})
		schema.ID = "https://convograph.dev/schemas/config.json"
		schema.Title = "convograph configuration"
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"
	return schema
}

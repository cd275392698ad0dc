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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/convograph/pkg/graph"
)

// ValidateCmd validates agent graph files.
type ValidateCmd struct {
	Files  []string `arg:"" name:"file" help:"Agent graph files (YAML or JSON)." type:"existingfile"`
	Format string   `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
}

// fileResult is one line of validation output.
type fileResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	AgentID  string   `json:"agent_id,omitempty"`
	Nodes    int      `json:"nodes,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func (c *ValidateCmd) Run() error {
	results := make([]fileResult, 0, len(c.Files))
	failed := 0
	for _, file := range c.Files {
		r := validateFile(file)
		if !r.Valid {
			failed++
		}
		results = append(results, r)
	}

	if err := printResults(os.Stdout, c.Format, results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graph files invalid", failed, len(c.Files))
	}
	return nil
}

func validateFile(path string) fileResult {
	g, err := graph.ParseFile(path)
	if err == nil {
		return fileResult{File: path, Valid: true, AgentID: g.ID, Nodes: g.Len()}
	}

	r := fileResult{File: path}
	var verr *graph.ValidationError
	if errors.As(err, &verr) {
		r.AgentID = verr.GraphID
		for _, p := range verr.Problems {
			r.Problems = append(r.Problems, p.String())
		}
		return r
	}
	r.Problems = []string{err.Error()}
	return r
}

func printResults(w io.Writer, format string, results []fileResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "verbose":
		for _, r := range results {
			fmt.Fprintf(w, "File:    %s\n", r.File)
			if r.AgentID != "" {
				fmt.Fprintf(w, "Agent:   %s\n", r.AgentID)
			}
			if r.Valid {
				fmt.Fprintf(w, "Status:  valid (%d nodes)\n\n", r.Nodes)
				continue
			}
			fmt.Fprintf(w, "Status:  invalid\n")
			for _, p := range r.Problems {
				fmt.Fprintf(w, "  - %s\n", p)
			}
			fmt.Fprintln(w)
		}
	default:
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(w, "%s: ok\n", r.File)
				continue
			}
			for _, p := range r.Problems {
				fmt.Fprintf(w, "%s: %s\n", r.File, p)
			}
		}
	}
	return nil
}

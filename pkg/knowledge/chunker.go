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

package knowledge

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunker splits text into overlapping windows measured in characters,
// cutting at the strongest nearby boundary.
type Chunker struct {
	size    int
	overlap int
}

// separators in order of preference.
var separators = []string{"\n\n", "\n", ". ", " "}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap (%d) must be in [0, %d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in order. Blank chunks are dropped.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	var chunks []string

	for start := 0; start < len(runes); {
		end := min(start+c.size, len(runes))
		if end < len(runes) {
			end = c.boundary(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}
		start = max(c.overlapStart(runes, end), start+1)
	}
	return chunks
}

// boundary moves end back to just after a separator, searching only the
// second half of the window so chunks stay reasonably full.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	floor := start + c.size/2
	window := string(runes[floor:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + len([]rune(window[:i+len(sep)]))
		}
	}
	return end
}

// overlapStart steps back by the overlap, then forward past the next
// whitespace so the overlap does not open mid-word.
func (c *Chunker) overlapStart(runes []rune, end int) int {
	next := end - c.overlap
	for j := next; j < end; j++ {
		if unicode.IsSpace(runes[j]) {
			return j + 1
		}
	}
	return next
}

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

// Package testutils provides deterministic stand-ins for the external
// collaborators of the engine: LLMs and embedders.
package testutils

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/kadirpekel/convograph/pkg/model"
)

// ErrNoScript is returned by LLM when it runs out of scripted replies.
var ErrNoScript = errors.New("no scripted response left")

// LLM is a scripted model.LLM. Handler, when set, answers every request;
// otherwise Responses are consumed in order.
type LLM struct {
	Handler   func(req *model.Request) (string, error)
	Responses []string

	mu       sync.Mutex
	requests []*model.Request
}

// NewLLM returns an LLM replying with responses in order.
func NewLLM(responses ...string) *LLM {
	return &LLM{Responses: responses}
}

// FailingLLM returns an LLM whose every call fails with err.
func FailingLLM(err error) *LLM {
	return &LLM{Handler: func(*model.Request) (string, error) { return "", err }}
}

func (l *LLM) Name() string             { return "scripted" }
func (l *LLM) Provider() model.Provider { return model.ProviderUnknown }
func (l *LLM) Close() error             { return nil }

func (l *LLM) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.requests = append(l.requests, req)
	handler := l.Handler
	var text string
	var err error
	if handler == nil {
		if len(l.Responses) == 0 {
			err = ErrNoScript
		} else {
			text, l.Responses = l.Responses[0], l.Responses[1:]
		}
	}
	l.mu.Unlock()

	if handler != nil {
		text, err = handler(req)
	}
	if err != nil {
		return nil, err
	}
	return &model.Response{Text: text}, nil
}

// Requests returns a copy of every request received so far.
func (l *LLM) Requests() []*model.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Request(nil), l.requests...)
}

// Calls returns the number of requests received.
func (l *LLM) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

var _ model.LLM = (*LLM)(nil)

// Embedder hashes words into a fixed number of buckets, so texts sharing
// words land close together.
type Embedder struct {
	Dim int
	Err error
}

// NewEmbedder returns a 256 dimension hashing embedder.
func NewEmbedder() *Embedder {
	return &Embedder{Dim: 256}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.Dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) Dimension() int { return e.Dim }
func (e *Embedder) Model() string  { return "hashing" }
func (e *Embedder) Close() error   { return nil }

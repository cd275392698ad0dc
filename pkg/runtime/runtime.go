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

// Package runtime assembles the engine, its collaborators and storage
// from configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/convograph/pkg/agentstore"
	"github.com/kadirpekel/convograph/pkg/branch"
	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/embedder"
	"github.com/kadirpekel/convograph/pkg/engine"
	"github.com/kadirpekel/convograph/pkg/extract"
	"github.com/kadirpekel/convograph/pkg/httpclient"
	"github.com/kadirpekel/convograph/pkg/knowledge"
	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/observability"
	"github.com/kadirpekel/convograph/pkg/reply"
	"github.com/kadirpekel/convograph/pkg/session"
	"github.com/kadirpekel/convograph/pkg/vector"
	"github.com/kadirpekel/convograph/pkg/webhook"
)

// Runtime owns every component built from one configuration.
type Runtime struct {
	config   *config.Config
	pool     *config.DBPool
	obs      *observability.Manager
	llms     map[string]model.LLM
	embedder embedder.Embedder
	store    vector.Provider
	agents   agentstore.Repository
	sessions session.Repository
	engine   *engine.Engine
	service  *engine.Service
}

// Option customizes how a Runtime builds its components.
type Option func(*options)

type options struct {
	llmFactory      LLMFactory
	embedderFactory EmbedderFactory
	storeFactory    VectorStoreFactory
	agents          agentstore.Repository
	tracerOpts      []observability.TracerOption
}

func WithLLMFactory(f LLMFactory) Option                 { return func(o *options) { o.llmFactory = f } }
func WithEmbedderFactory(f EmbedderFactory) Option       { return func(o *options) { o.embedderFactory = f } }
func WithVectorStoreFactory(f VectorStoreFactory) Option { return func(o *options) { o.storeFactory = f } }

// WithAgents replaces the repository selected by cfg.Agents.
func WithAgents(repo agentstore.Repository) Option { return func(o *options) { o.agents = repo } }

func WithTracerOptions(opts ...observability.TracerOption) Option {
	return func(o *options) { o.tracerOpts = append(o.tracerOpts, opts...) }
}

// New builds a Runtime. cfg must already carry defaults. ctx bounds
// background work such as agent directory watching.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := &options{
		llmFactory:      DefaultLLMFactory,
		embedderFactory: DefaultEmbedderFactory,
		storeFactory:    DefaultVectorStoreFactory,
	}
	for _, opt := range opts {
		opt(o)
	}

	r := &Runtime{
		config: cfg,
		pool:   config.NewDBPool(),
		obs:    observability.NewManager(cfg.Observability),
		llms:   make(map[string]model.LLM),
	}
	if err := r.build(ctx, o); err != nil {
		if cerr := r.Close(); cerr != nil {
			slog.Warn("Failed to clean up runtime", "error", cerr)
		}
		return nil, err
	}
	return r, nil
}

func (r *Runtime) build(ctx context.Context, o *options) error {
	cfg := r.config

	if err := r.obs.Initialize(ctx, o.tracerOpts...); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	tracer, metrics := r.obs.Tracer(), r.obs.Metrics()

	var err error
	r.sessions, err = session.NewRepositoryFromConfig(ctx, cfg, r.pool)
	if err != nil {
		return fmt.Errorf("failed to create session repository: %w", err)
	}

	if o.agents != nil {
		r.agents = o.agents
	} else {
		r.agents, err = agentstore.NewFromConfig(ctx, cfg, r.pool)
		if err != nil {
			return fmt.Errorf("failed to create agent repository: %w", err)
		}
	}

	replyLLM, err := r.llm(cfg.Engine.LLM, o.llmFactory)
	if err != nil {
		return err
	}
	classifierLLM, err := r.llm(cfg.Engine.ClassifierLLM, o.llmFactory)
	if err != nil {
		return err
	}
	extractorLLM, err := r.llm(cfg.Engine.ExtractorLLM, o.llmFactory)
	if err != nil {
		return err
	}

	composerOpts := []reply.Option{
		reply.WithAttempts(cfg.Engine.ReplyAttempts),
		reply.WithBackoff(cfg.Engine.ReplyBackoff),
		reply.WithHistory(cfg.Engine.HistoryTurns, cfg.Engine.HistoryTokens),
	}
	if cfg.Engine.FallbackMessage != "" {
		composerOpts = append(composerOpts, reply.WithFallback(cfg.Engine.FallbackMessage))
	}
	composer := reply.NewLLMComposer(
		model.WithObservability(replyLLM, observability.PurposeReply, tracer, metrics),
		composerOpts...,
	)

	retriever, err := r.retriever(ctx, o)
	if err != nil {
		return err
	}

	r.engine = engine.New(
		engine.WithWebhookInvoker(newInvoker(&cfg.Webhook)),
		engine.WithBranchResolver(branch.NewLLMResolver(
			model.WithObservability(classifierLLM, observability.PurposeClassify, tracer, metrics), "")),
		engine.WithExtractor(extract.NewLLMExtractor(
			model.WithObservability(extractorLLM, observability.PurposeExtract, tracer, metrics), "")),
		engine.WithRetriever(retriever),
		engine.WithComposer(composer),
		engine.WithHistory(r.sessions),
		engine.WithHistoryLimit(2*cfg.Engine.HistoryTurns),
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithMinConfidence(cfg.Engine.MinConfidence),
		engine.WithApologyMessage(cfg.Engine.ApologyMessage),
		engine.WithTracer(tracer),
		engine.WithMetrics(metrics),
	)
	r.service = engine.NewService(r.engine, r.agents, r.sessions)

	slog.Debug("Runtime ready",
		"sessions", cfg.Sessions.Backend, "agents", cfg.Agents.Backend,
		"llm", cfg.Engine.LLM, "knowledge", cfg.Knowledge.Enabled())
	return nil
}

// llm returns the named LLM, creating it on first use.
func (r *Runtime) llm(name string, factory LLMFactory) (model.LLM, error) {
	if llm, ok := r.llms[name]; ok {
		return llm, nil
	}
	llmCfg, err := r.config.LLM(name)
	if err != nil {
		return nil, err
	}
	llm, err := factory(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm %q: %w", name, err)
	}
	r.llms[name] = llm
	return llm, nil
}

// retriever falls back to NopRetriever when no embedder is configured.
func (r *Runtime) retriever(ctx context.Context, o *options) (knowledge.Retriever, error) {
	kcfg := r.config.Knowledge
	if !kcfg.Enabled() {
		return knowledge.NopRetriever{}, nil
	}
	if err := r.openKnowledge(ctx, o); err != nil {
		return nil, err
	}
	return knowledge.NewRetriever(r.embedder, r.store,
		knowledge.WithDefaultTopK(kcfg.TopK),
		knowledge.WithMinScore(kcfg.MinScore),
	), nil
}

func (r *Runtime) openKnowledge(ctx context.Context, o *options) error {
	kcfg := r.config.Knowledge

	embCfg, ok := r.config.Embedders[kcfg.Embedder]
	if !ok || embCfg == nil {
		return fmt.Errorf("embedder %q is not defined", kcfg.Embedder)
	}
	storeCfg, ok := r.config.VectorStores[kcfg.VectorStore]
	if !ok || storeCfg == nil {
		return fmt.Errorf("vector store %q is not defined", kcfg.VectorStore)
	}

	emb, err := o.embedderFactory(embCfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder %q: %w", kcfg.Embedder, err)
	}
	r.embedder = emb

	store, err := o.storeFactory(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store %q: %w", kcfg.VectorStore, err)
	}
	r.store = store
	return nil
}

func newInvoker(cfg *config.WebhookConfig) *webhook.HTTPInvoker {
	opts := []webhook.Option{
		webhook.WithTimeout(cfg.Timeout),
		webhook.WithMaxRetries(cfg.MaxRetries),
		webhook.WithBaseDelay(cfg.BaseDelay),
		webhook.WithHeaders(cfg.Headers),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, webhook.WithTLS(&httpclient.TLSConfig{InsecureSkipVerify: true}))
	}
	return webhook.NewHTTPInvoker(opts...)
}

// Indexer returns a knowledge indexer using the configured embedder and
// vector store.
func (r *Runtime) Indexer() (*knowledge.Indexer, error) {
	if r.embedder == nil || r.store == nil {
		return nil, fmt.Errorf("knowledge is not configured")
	}
	chunker, err := knowledge.NewChunker(r.config.Knowledge.ChunkSize, r.config.Knowledge.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return knowledge.NewIndexer(r.embedder, r.store, chunker), nil
}

func (r *Runtime) Config() *config.Config                { return r.config }
func (r *Runtime) Service() *engine.Service              { return r.service }
func (r *Runtime) Engine() *engine.Engine                { return r.engine }
func (r *Runtime) Agents() agentstore.Repository         { return r.agents }
func (r *Runtime) Sessions() session.Repository          { return r.sessions }
func (r *Runtime) Observability() *observability.Manager { return r.obs }

// Close releases everything the runtime opened.
func (r *Runtime) Close() error {
	var errs []error

	if r.agents != nil {
		errs = append(errs, r.agents.Close())
	}
	if r.sessions != nil {
		errs = append(errs, r.sessions.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.embedder != nil {
		errs = append(errs, r.embedder.Close())
	}
	for name, llm := range r.llms {
		if err := llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("llm %s: %w", name, err))
		}
	}
	errs = append(errs, r.pool.Close())
	errs = append(errs, r.obs.Shutdown(context.Background()))

	return errors.Join(errs...)
}

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

// Package engine walks agent graphs on behalf of sessions.
//
// One call (Start or Resume) executes nodes until the session needs user
// input, reaches a terminal edge, or fails. Every message produced along
// the way is returned as one batch. Only wait_for_user_input nodes and
// webhook nodes missing required parameters suspend a session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/convograph/pkg/branch"
	"github.com/kadirpekel/convograph/pkg/extract"
	"github.com/kadirpekel/convograph/pkg/graph"
	"github.com/kadirpekel/convograph/pkg/knowledge"
	"github.com/kadirpekel/convograph/pkg/observability"
	"github.com/kadirpekel/convograph/pkg/reply"
	"github.com/kadirpekel/convograph/pkg/session"
	"github.com/kadirpekel/convograph/pkg/webhook"
)

const (
	DefaultMaxSteps      = 50
	DefaultMinConfidence = 0.5
	DefaultHistoryLimit  = 10

	// DefaultMissingParamMessage is sent when a webhook node lacks data
	// and declares no message of its own.
	DefaultMissingParamMessage = "Missing data"
)

const (
	opStart  = "start"
	opResume = "message"
)

// HistorySource supplies the persisted conversation of a session.
// session.Repository satisfies it.
type HistorySource interface {
	History(ctx context.Context, sessionID string, limit int) ([]session.Message, error)
}

// Action describes a webhook waiting for parameters.
type Action struct {
	Name          string   `json:"name,omitempty"`
	NodeID        string   `json:"node_id"`
	MissingParams []string `json:"missing_params"`
}

// Outcome is the result of one engine call.
type Outcome struct {
	Session *session.Session

	// Messages is the batch produced by this call, in order.
	Messages []string

	// Action is set when the session waits at a webhook for parameters.
	Action *Action

	// Failure holds the *ExecutionError that ended the call, if any. It
	// has already been logged and turned into ApologyMessage.
	Failure error

	Steps int
}

// Engine executes graphs. It holds no per-session state and is safe for
// concurrent use; callers serialize calls per session.
type Engine struct {
	invoker   webhook.Invoker
	resolver  branch.Resolver
	extractor extract.Extractor
	retriever knowledge.Retriever
	composer  reply.Composer
	history   HistorySource

	tracer  *observability.Tracer
	metrics observability.Metrics

	maxSteps      int
	minConfidence float64
	historyLimit  int
	apology       string
}

// Option configures an Engine.
type Option func(*Engine)

func WithWebhookInvoker(i webhook.Invoker) Option { return func(e *Engine) { e.invoker = i } }
func WithBranchResolver(r branch.Resolver) Option { return func(e *Engine) { e.resolver = r } }
func WithExtractor(x extract.Extractor) Option    { return func(e *Engine) { e.extractor = x } }
func WithRetriever(r knowledge.Retriever) Option  { return func(e *Engine) { e.retriever = r } }
func WithComposer(c reply.Composer) Option        { return func(e *Engine) { e.composer = c } }
func WithHistory(h HistorySource) Option          { return func(e *Engine) { e.history = h } }
func WithTracer(t *observability.Tracer) Option   { return func(e *Engine) { e.tracer = t } }
func WithMetrics(m observability.Metrics) Option  { return func(e *Engine) { e.metrics = m } }
func WithApologyMessage(text string) Option       { return func(e *Engine) { e.apology = text } }
func WithMinConfidence(threshold float64) Option  { return func(e *Engine) { e.minConfidence = threshold } }
func WithMaxSteps(n int) Option                   { return func(e *Engine) { e.maxSteps = n } }
func WithHistoryLimit(n int) Option               { return func(e *Engine) { e.historyLimit = n } }

// New builds an engine. Collaborators left unset degrade gracefully:
// webhooks use a default HTTP invoker, retrieval returns nothing, and
// branch, extraction and reply calls fail over to their fallbacks.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxSteps:      DefaultMaxSteps,
		minConfidence: DefaultMinConfidence,
		historyLimit:  DefaultHistoryLimit,
		apology:       ApologyMessage,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}
	if e.apology == "" {
		e.apology = ApologyMessage
	}
	if e.invoker == nil {
		e.invoker = webhook.NewHTTPInvoker()
	}
	if e.retriever == nil {
		e.retriever = knowledge.NopRetriever{}
	}
	if e.metrics == nil {
		e.metrics = observability.NoopMetrics{}
	}
	return e
}

// StartSession creates a session for g at its start node and runs it.
func (e *Engine) StartSession(ctx context.Context, g *graph.AgentGraph, vars map[string]string) (*session.Session, []string, error) {
	out, err := e.Start(ctx, g, vars)
	if err != nil {
		return nil, nil, err
	}
	return out.Session, out.Messages, nil
}

// PostUserMessage resumes a suspended session with text. It fails with
// *InvalidStateError, leaving sess untouched, unless sess is suspended.
func (e *Engine) PostUserMessage(ctx context.Context, g *graph.AgentGraph, sess *session.Session, text string) (*session.Session, []string, error) {
	out, err := e.Resume(ctx, g, sess, text)
	if err != nil {
		return nil, nil, err
	}
	return out.Session, out.Messages, nil
}

// Start is StartSession returning the full Outcome.
func (e *Engine) Start(ctx context.Context, g *graph.AgentGraph, vars map[string]string) (*Outcome, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	return e.Begin(ctx, g, session.New(g.ID, vars))
}

// Begin runs a new, never executed session from the graph's start node.
// The returned session is a copy; sess itself is never modified.
func (e *Engine) Begin(ctx context.Context, g *graph.AgentGraph, sess *session.Session) (*Outcome, error) {
	if g == nil || sess == nil {
		return nil, fmt.Errorf("graph and session are required")
	}
	if !sess.Active() || sess.Suspended || sess.Version > 0 {
		return nil, &InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Err: ErrAlreadyStarted}
	}

	started := sess.Clone()
	started.CurrentNodeID = g.StartNode
	t := e.newTurn(g, started, opStart, nil, "")
	return e.execute(ctx, t, false), nil
}

// Resume is PostUserMessage returning the full Outcome. The returned
// session is a copy; sess itself is never modified.
func (e *Engine) Resume(ctx context.Context, g *graph.AgentGraph, sess *session.Session, text string) (*Outcome, error) {
	if g == nil || sess == nil {
		return nil, fmt.Errorf("graph and session are required")
	}
	if !sess.Active() || !sess.Suspended || sess.CurrentNodeID == "" {
		return nil, &InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Err: ErrNotSuspended}
	}

	var prior []session.Message
	if e.history != nil {
		h, err := e.history.History(ctx, sess.ID, e.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		prior = h
	}

	t := e.newTurn(g, sess.Clone(), opResume, prior, text)
	t.conversation = append(t.conversation, session.UserMessage(text))
	return e.execute(ctx, t, true), nil
}

// turn is the transient state of one call.
type turn struct {
	graph *graph.AgentGraph
	sess  *session.Session
	op    string

	// input is the text posted in this call.
	input string

	// conversation is persisted history plus messages of this call.
	conversation []session.Message

	// working holds snippets retrieved since the last composed reply. It
	// is kept in the session across suspensions.
	working []string

	messages []string
	action   *Action
	steps    int
}

func (e *Engine) newTurn(g *graph.AgentGraph, sess *session.Session, op string, prior []session.Message, input string) *turn {
	t := &turn{
		graph:        g,
		sess:         sess,
		op:           op,
		input:        input,
		conversation: append([]session.Message(nil), prior...),
		working:      sess.Context,
	}
	sess.Context = nil
	return t
}

func (t *turn) emit(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	t.messages = append(t.messages, text)
	t.conversation = append(t.conversation, session.AgentMessage(text))
}

// systemPrompt is the agent's system prompt rendered against the session.
func (t *turn) systemPrompt() string {
	p := strings.TrimSpace(t.graph.SystemPrompt)
	if p == "" {
		return ""
	}
	return Render(p, t.sess.Variables)
}

// latestUserText is the newest user message, posted now or earlier.
func (t *turn) latestUserText() string {
	for i := len(t.conversation) - 1; i >= 0; i-- {
		if t.conversation[i].Sender == session.SenderUser {
			return t.conversation[i].Text
		}
	}
	return ""
}

func (e *Engine) execute(ctx context.Context, t *turn, resuming bool) *Outcome {
	start := time.Now()
	ctx, span := e.tracer.StartRun(ctx, t.op, t.graph.ID, t.sess.ID)
	defer span.End()

	failure := e.loop(ctx, t, resuming)
	if failure != nil {
		observability.RecordError(span, failure)
		slog.Error("Session execution failed",
			"session_id", t.sess.ID, "agent_id", t.graph.ID, "node_id", t.sess.CurrentNodeID, "error", failure)
		t.sess.Status = session.StatusErrored
		t.sess.Suspended = false
		t.action = nil
		t.emit(e.apology)
	}

	e.metrics.RecordRun(ctx, t.graph.ID, t.op, t.steps, time.Since(start), failure)
	slog.Debug("Turn finished",
		"session_id", t.sess.ID, "status", t.sess.Status, "node_id", t.sess.CurrentNodeID,
		"suspended", t.sess.Suspended, "steps", t.steps, "messages", len(t.messages))

	return &Outcome{
		Session:  t.sess,
		Messages: t.messages,
		Action:   t.action,
		Failure:  failure,
		Steps:    t.steps,
	}
}

// loop advances until suspension, termination or failure. resuming marks
// that the first node receives the user's input.
func (e *Engine) loop(ctx context.Context, t *turn, resuming bool) error {
	sess := t.sess
	sess.Suspended = false

	for sess.CurrentNodeID != "" {
		if t.steps >= e.maxSteps {
			return &ExecutionError{SessionID: sess.ID, NodeID: sess.CurrentNodeID, Err: fmt.Errorf("%w (%d)", ErrStepLimit, e.maxSteps)}
		}
		node, ok := t.graph.Node(sess.CurrentNodeID)
		if !ok {
			return &ExecutionError{SessionID: sess.ID, NodeID: sess.CurrentNodeID, Err: ErrDanglingNode}
		}
		if resuming && !graph.Interactive(node) {
			return &ExecutionError{SessionID: sess.ID, NodeID: node.NodeID(), Err: ErrNotInteractive}
		}
		t.steps++

		st, err := e.step(ctx, t, node, resuming)
		resuming = false
		if err != nil {
			return err
		}
		if st.suspend {
			sess.Suspended = true
			sess.Context = t.working
			return nil
		}
		sess.CurrentNodeID = st.next
	}

	sess.Status = session.StatusTerminated
	return nil
}

// stepResult says where to go after a node.
type stepResult struct {
	next    string
	suspend bool
}

func (e *Engine) step(ctx context.Context, t *turn, node graph.Node, resuming bool) (stepResult, error) {
	start := time.Now()
	ctx, span := e.tracer.StartNode(ctx, node.NodeID(), string(node.Type()))
	defer span.End()

	slog.Debug("Executing node", "session_id", t.sess.ID, "node_id", node.NodeID(), "type", node.Type())

	var (
		res stepResult
		err error
	)
	switch n := node.(type) {
	case *graph.MessageNode:
		res = e.message(t, n)
	case *graph.ForcedMessageNode:
		res = e.forcedMessage(t, n)
	case *graph.WaitNode:
		res = e.wait(t, n, resuming)
	case *graph.WebhookNode:
		res = e.webhook(ctx, t, n)
	case *graph.KnowledgeNode:
		res = e.knowledge(ctx, t, n)
	case *graph.ConditionalNode:
		res, err = e.conditional(ctx, t, n)
	case *graph.LLMRequestNode:
		res = e.llmRequest(ctx, t, n)
	default:
		err = &ExecutionError{SessionID: t.sess.ID, NodeID: node.NodeID(), Err: fmt.Errorf("unsupported node type %q", node.Type())}
	}

	observability.RecordError(span, err)
	e.metrics.RecordNode(ctx, string(node.Type()), time.Since(start), err)
	return res, err
}

func (e *Engine) message(t *turn, n *graph.MessageNode) stepResult {
	text := Render(n.Text, t.sess.Variables)
	t.sess.Outputs[n.ID] = text
	t.emit(text)
	return stepResult{next: n.Next}
}

func (e *Engine) forcedMessage(t *turn, n *graph.ForcedMessageNode) stepResult {
	text := ""
	if n.ReferenceNodeID != "" {
		text = t.sess.Outputs[n.ReferenceNodeID]
	}
	if text == "" {
		text = Render(n.Text, t.sess.Variables)
	}
	t.sess.Outputs[n.ID] = text
	t.emit(text)
	return stepResult{next: n.Next}
}

func (e *Engine) wait(t *turn, n *graph.WaitNode, resuming bool) stepResult {
	if !resuming {
		t.emit(Render(n.Prompt, t.sess.Variables))
		return stepResult{suspend: true}
	}
	t.sess.Variables[n.ID] = t.input
	t.sess.Outputs[n.ID] = t.input
	return stepResult{next: n.Next}
}

func (e *Engine) webhook(ctx context.Context, t *turn, n *graph.WebhookNode) stepResult {
	params, missing := e.resolveParams(ctx, t, n)
	if len(missing) > 0 {
		msg := n.MissingParamMessage
		if msg == "" {
			msg = DefaultMissingParamMessage
		}
		t.emit(Render(msg, t.sess.Variables))
		t.action = &Action{Name: n.Action, NodeID: n.ID, MissingParams: missing}
		slog.Info("Webhook waiting for parameters", "session_id", t.sess.ID, "node_id", n.ID, "missing", missing)
		return stepResult{suspend: true}
	}

	method := n.Method
	if method == "" {
		method = "POST"
	}
	url := RenderURL(n.URL, t.sess.Variables)

	start := time.Now()
	callCtx, span := e.tracer.StartWebhook(ctx, method, url)
	result := e.invoker.Call(callCtx, webhook.Request{
		URL:     url,
		Method:  method,
		Params:  params,
		Headers: n.Headers,
		Timeout: n.Timeout,
	})
	span.End()
	e.metrics.RecordWebhook(ctx, result.OK, time.Since(start))

	t.sess.Variables[n.ID] = result.Body
	t.sess.Outputs[n.ID] = result.Body

	if result.OK {
		if n.SuccessMessage != "" {
			t.emit(Render(n.SuccessMessage, t.sess.Variables))
		}
		return stepResult{next: n.OnSuccess}
	}

	err := &ExternalServiceError{Service: "webhook", NodeID: n.ID, Err: errors.New(result.Reason)}
	slog.Warn("Webhook failed", "session_id", t.sess.ID, "status", result.StatusCode, "error", err)
	if n.FailureMessage != "" {
		t.emit(Render(n.FailureMessage, t.sess.Variables))
	}
	return stepResult{next: n.OnFailure}
}

// resolveParams takes each parameter from its fixed value, then from a
// session variable of the same name, then from the conversation via the
// extractor. Extracted values are kept as session variables.
func (e *Engine) resolveParams(ctx context.Context, t *turn, n *graph.WebhookNode) (map[string]string, []string) {
	params := make(map[string]string, len(n.Params))
	var pending []extract.Param
	for _, p := range n.Params {
		switch {
		case p.Value != "":
			params[p.Name] = Render(p.Value, t.sess.Variables)
		case t.sess.Variables[p.Name] != "":
			params[p.Name] = t.sess.Variables[p.Name]
		default:
			pending = append(pending, extract.Param{Name: p.Name, Description: p.Description})
		}
	}

	if len(pending) > 0 && e.extractor != nil && t.latestUserText() != "" {
		found, err := e.extractor.Extract(ctx, t.systemPrompt(), pending, t.conversation)
		if err != nil {
			slog.Warn("Parameter extraction failed", "session_id", t.sess.ID,
				"error", &ExternalServiceError{Service: "extractor", NodeID: n.ID, Err: err})
		}
		for name, value := range found {
			params[name] = value
			t.sess.Variables[name] = value
		}
	}

	var missing []string
	for _, p := range n.Params {
		if _, ok := params[p.Name]; !ok && !p.Optional {
			missing = append(missing, p.Name)
		}
	}
	return params, missing
}

func (e *Engine) knowledge(ctx context.Context, t *turn, n *graph.KnowledgeNode) stepResult {
	query := t.latestUserText()

	start := time.Now()
	callCtx, span := e.tracer.StartRetrieval(ctx, n.Source, n.TopK)
	var opts []knowledge.RetrieveOption
	if n.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(n.TopK))
	}
	snippets, err := e.retriever.Retrieve(callCtx, n.Source, query, opts...)
	observability.RecordError(span, err)
	span.End()
	e.metrics.RecordRetrieval(ctx, n.Source, len(snippets), time.Since(start), err)

	if err != nil {
		slog.Warn("Knowledge retrieval failed", "session_id", t.sess.ID,
			"error", &ExternalServiceError{Service: "knowledge", NodeID: n.ID, Err: err})
		return stepResult{next: n.Next}
	}

	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Text)
	}
	t.working = append(t.working, texts...)
	t.sess.Outputs[n.ID] = strings.Join(texts, "\n\n")
	return stepResult{next: n.Next}
}

func (e *Engine) conditional(ctx context.Context, t *turn, n *graph.ConditionalNode) (stepResult, error) {
	cls := branch.Classification{Index: branch.NoMatch}
	utterance := t.latestUserText()

	if e.resolver != nil && utterance != "" && len(n.Branches) > 0 {
		var err error
		cls, err = e.resolver.Classify(ctx, t.systemPrompt(), n.Conditions(), utterance)
		if err != nil {
			slog.Warn("Branch classification failed", "session_id", t.sess.ID,
				"error", &ExternalServiceError{Service: "classifier", NodeID: n.ID, Err: err})
			cls = branch.Classification{Index: branch.NoMatch}
		}
	}

	if cls.Matched() && cls.Index < len(n.Branches) && cls.Confidence >= e.minConfidence {
		b := n.Branches[cls.Index]
		slog.Debug("Branch selected", "session_id", t.sess.ID, "node_id", n.ID, "branch", b.ID, "confidence", cls.Confidence)
		t.sess.Outputs[n.ID] = b.ID
		return stepResult{next: b.Next}, nil
	}
	if n.DefaultBranch != "" {
		t.sess.Outputs[n.ID] = n.DefaultBranch
		return stepResult{next: n.DefaultBranch}, nil
	}
	return stepResult{}, &ExecutionError{SessionID: t.sess.ID, NodeID: n.ID, Err: ErrNoBranch}
}

func (e *Engine) llmRequest(ctx context.Context, t *turn, n *graph.LLMRequestNode) stepResult {
	var system []string
	if p := t.systemPrompt(); p != "" {
		system = append(system, p)
	}
	if p := strings.TrimSpace(n.Prompt); p != "" {
		system = append(system, Render(p, t.sess.Variables))
	}

	text := e.apology
	if e.composer != nil {
		text = e.composer.Generate(ctx, reply.Prompt{
			System:  strings.Join(system, "\n\n"),
			Context: t.working,
			History: t.conversation,
		})
	} else {
		slog.Warn("No reply composer configured", "session_id", t.sess.ID, "node_id", n.ID)
	}
	t.working = nil

	t.sess.Outputs[n.ID] = text
	t.emit(text)
	return stepResult{next: n.Next}
}

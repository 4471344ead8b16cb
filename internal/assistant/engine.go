package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"coremind-platform/internal/knowledge"
	"coremind-platform/internal/llm"
	"coremind-platform/internal/logger"
	"coremind-platform/internal/telemetry"
)

// ChatProvider is the slice of the LLM gateway the engine needs.
type ChatProvider interface {
	Chat(ctx context.Context, messages []llm.Message, systemPrompt string) (string, error)
	ChatStream(ctx context.Context, messages []llm.Message, systemPrompt string, fn func(string)) (string, error)
	Provider() string
}

// Retriever is the slice of a knowledge store the engine needs.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]knowledge.Hit, error)
	Name() string
}

// Result is the outcome of one chat turn. Degraded means the model call
// failed and Reply is a fallback explanation rather than a model answer.
type Result struct {
	Reply         string
	Route         RouteDecision
	KnowledgeHits []knowledge.Hit
	UsedKnowledge bool
	Degraded      bool
}

// Engine runs one conversation: it owns the memory, routes each query,
// retrieves grounding context and calls the model. One Engine per
// conversation; the gateway and retrievers behind it are shared.
type Engine struct {
	gateway      ChatProvider
	classifier   Classifier
	memory       *Memory
	retrievers   []Retriever
	caps         Capabilities
	services     []Service
	systemPrompt string
	topK         int
	metrics      *telemetry.Metrics
}

// EngineOptions configures a new Engine. Metrics may be nil.
type EngineOptions struct {
	Gateway      ChatProvider
	Classifier   Classifier
	Memory       *Memory
	Retrievers   []Retriever
	Capabilities Capabilities
	Services     []Service
	SystemPrompt string
	TopK         int
	Metrics      *telemetry.Metrics
}

const defaultTopK = 3

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("engine requires a chat provider")
	}
	if opts.Classifier == nil {
		opts.Classifier = NewKeywordRouter(true)
	}
	if opts.Memory == nil {
		opts.Memory = NewMemory(0)
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Capabilities.KnowledgeBase && len(opts.Retrievers) == 0 {
		opts.Capabilities.KnowledgeBase = false
	}

	return &Engine{
		gateway:      opts.Gateway,
		classifier:   opts.Classifier,
		memory:       opts.Memory,
		retrievers:   opts.Retrievers,
		caps:         opts.Capabilities,
		services:     opts.Services,
		systemPrompt: opts.SystemPrompt,
		topK:         opts.TopK,
		metrics:      opts.Metrics,
	}, nil
}

// Memory exposes the conversation history.
func (e *Engine) Memory() *Memory { return e.memory }

// Chat runs one full turn: append the user message, route, retrieve,
// call the model, append the reply. A failed model call produces a
// degraded reply, never a lost turn.
func (e *Engine) Chat(ctx context.Context, query string) (*Result, error) {
	tracer := otel.Tracer("assistant-engine")
	ctx, span := tracer.Start(ctx, "assistant.chat")
	defer span.End()

	start := time.Now()
	e.memory.AddMessage(llm.RoleUser, query)

	route := e.classifier.Route(query, e.caps, e.services)
	span.SetAttributes(
		attribute.String("route.type", string(route.Type)),
		attribute.Float64("route.confidence", route.Confidence),
	)

	hits := e.retrieve(ctx, query, route)
	prompt := e.buildSystemPrompt(hits)

	reply, err := e.gateway.Chat(ctx, e.history(), prompt)
	degraded := false
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("model call failed, degrading", "provider", e.gateway.Provider(), "error", err)
		reply = degradedReply(err)
		degraded = true
		span.SetAttributes(attribute.Bool("chat.degraded", true))
	}

	e.memory.AddMessage(llm.RoleAssistant, reply)

	if e.metrics != nil {
		e.metrics.RecordChatTurn(string(route.Type), degraded, time.Since(start).Seconds())
	}

	return &Result{
		Reply:         reply,
		Route:         route,
		KnowledgeHits: hits,
		UsedKnowledge: len(hits) > 0,
		Degraded:      degraded,
	}, nil
}

// ChatStream is Chat with the reply streamed through fn. On cancellation
// the partial reply produced so far is still appended to memory, so the
// history matches exactly what the caller saw.
func (e *Engine) ChatStream(ctx context.Context, query string, fn func(string)) (*Result, error) {
	tracer := otel.Tracer("assistant-engine")
	ctx, span := tracer.Start(ctx, "assistant.chat_stream")
	defer span.End()

	start := time.Now()
	e.memory.AddMessage(llm.RoleUser, query)

	route := e.classifier.Route(query, e.caps, e.services)
	span.SetAttributes(
		attribute.String("route.type", string(route.Type)),
		attribute.Float64("route.confidence", route.Confidence),
	)

	hits := e.retrieve(ctx, query, route)
	prompt := e.buildSystemPrompt(hits)

	reply, err := e.gateway.ChatStream(ctx, e.history(), prompt, fn)
	degraded := false
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if reply != "" {
			e.memory.AddMessage(llm.RoleAssistant, reply)
		}
		return &Result{
			Reply:         reply,
			Route:         route,
			KnowledgeHits: hits,
			UsedKnowledge: len(hits) > 0,
		}, err
	default:
		logger.Error("model stream failed, degrading", "provider", e.gateway.Provider(), "error", err)
		reply = degradedReply(err)
		fn(reply)
		degraded = true
		span.SetAttributes(attribute.Bool("chat.degraded", true))
	}

	e.memory.AddMessage(llm.RoleAssistant, reply)

	if e.metrics != nil {
		e.metrics.RecordChatTurn(string(route.Type), degraded, time.Since(start).Seconds())
	}

	return &Result{
		Reply:         reply,
		Route:         route,
		KnowledgeHits: hits,
		UsedKnowledge: len(hits) > 0,
		Degraded:      degraded,
	}, nil
}

// retrieve gathers top-K hits per collection when the route wants
// knowledge. Retrieval failures degrade to an answer without context,
// they never fail the turn.
func (e *Engine) retrieve(ctx context.Context, query string, route RouteDecision) []knowledge.Hit {
	if !e.caps.KnowledgeBase {
		return nil
	}
	if route.Type != RouteKnowledgeBase && route.Type != RouteMixed {
		return nil
	}

	var hits []knowledge.Hit
	for _, r := range e.retrievers {
		found, err := r.Search(ctx, query, e.topK, nil)
		if err != nil {
			logger.Error("knowledge retrieval failed, answering without context",
				"collection", r.Name(), "error", err)
			continue
		}
		// Stamp the source collection so context blocks can attribute
		// each chunk regardless of the retriever implementation.
		for i := range found {
			found[i].Collection = r.Name()
		}
		hits = append(hits, found...)
		if e.metrics != nil {
			e.metrics.RecordKnowledgeSearch(r.Name(), len(found))
		}
	}
	return hits
}

// buildSystemPrompt composes the base prompt with numbered, attributed
// context blocks so replies can cite their sources.
func (e *Engine) buildSystemPrompt(hits []knowledge.Hit) string {
	base := e.systemPrompt
	if base == "" {
		base = "You are a helpful assistant."
	}
	if len(hits) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nAnswer using the reference material below. ")
	b.WriteString("If it does not contain the answer, say so instead of guessing.\n")
	for i, h := range hits {
		source := h.Collection
		if source == "" {
			source = "knowledge base"
		}
		fmt.Fprintf(&b, "\n[source %d - %s]\n%s\n", i+1, source, h.Content)
	}
	return b.String()
}

// history returns the conversation without system messages; the system
// prompt travels separately so retrieval context never accumulates in
// memory.
func (e *Engine) history() []llm.Message {
	var out []llm.Message
	for _, m := range e.memory.Messages() {
		if m.Role != llm.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// degradedReply names the failure class and the likely remediation
// without leaking credentials or raw provider payloads.
func degradedReply(err error) string {
	var transport *llm.TransportError
	var malformed *llm.MalformedResponseError
	var provider *llm.ProviderError

	switch {
	case errors.Is(err, llm.ErrAuth):
		return "I could not reach the language model: authentication failed. Please check the configured provider credential."
	case errors.Is(err, llm.ErrRateLimited):
		return "I could not reach the language model: the provider is rate limiting requests. Please retry in a moment."
	case errors.As(err, &transport):
		return "I could not reach the language model: the provider did not respond. Please check connectivity and the configured endpoint."
	case errors.As(err, &malformed):
		return "The language model answered in an unexpected format and the reply could not be read. Please retry."
	case errors.As(err, &provider):
		return fmt.Sprintf("The language model provider rejected the request (status %d). Please retry or check the provider configuration.", provider.Status)
	default:
		return "The language model is currently unavailable. Please retry in a moment."
	}
}

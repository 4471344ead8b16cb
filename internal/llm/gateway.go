package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"coremind-platform/internal/crypto"
	"coremind-platform/internal/logger"
	"coremind-platform/internal/telemetry"
)

// call carries one request through an adapter. The unsealed key lives
// only here, for the duration of the call.
type call struct {
	cfg      ProviderConfig
	apiKey   string
	messages []Message
	httpc    *http.Client
}

// adapter is one provider family's wire protocol.
type adapter interface {
	chat(ctx context.Context, c *call) (string, error)
	stream(ctx context.Context, c *call, fn func(string)) (string, error)
}

func adapterFor(provider string) (adapter, error) {
	switch provider {
	case ProviderOpenAI:
		return &openAICompat{provider: ProviderOpenAI, defaultBaseURL: "https://api.openai.com/v1"}, nil
	case ProviderDeepSeek:
		return &openAICompat{provider: ProviderDeepSeek, defaultBaseURL: "https://api.deepseek.com/v1"}, nil
	case ProviderZhipu:
		return &openAICompat{provider: ProviderZhipu, defaultBaseURL: "https://open.bigmodel.cn/api/paas/v4"}, nil
	case ProviderMoonshot:
		return &openAICompat{provider: ProviderMoonshot, defaultBaseURL: "https://api.moonshot.cn/v1"}, nil
	case ProviderQwen:
		return newQwenAdapter(), nil
	case ProviderOllama:
		return &ollamaAdapter{}, nil
	case ProviderCustom:
		return &customAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// Gateway dispatches chat requests to exactly one configured provider,
// wrapping calls in a circuit breaker and a rate limiter.
type Gateway struct {
	cfg     ProviderConfig
	keeper  *crypto.Keeper
	adapter adapter
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	httpc   *http.Client
}

// NewGateway validates the provider configuration and builds the
// dispatch chain. Every provider except ollama requires a credential;
// missing credentials fail construction, not the first call.
// Metrics may be nil.
func NewGateway(cfg ProviderConfig, keeper *crypto.Keeper, metrics *telemetry.Metrics) (*Gateway, error) {
	if cfg.Provider != ProviderOllama && cfg.Credential == "" {
		return nil, fmt.Errorf("provider %s requires a credential", cfg.Provider)
	}

	a, err := adapterFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm:" + cfg.Provider,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	timeout := 60 * time.Second
	if cfg.Provider == ProviderOllama {
		timeout = 120 * time.Second // local generation is slower
	}

	return &Gateway{
		cfg:     cfg,
		keeper:  keeper,
		adapter: a,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

// Provider returns the configured provider id.
func (g *Gateway) Provider() string { return g.cfg.Provider }

func (g *Gateway) newCall(messages []Message, systemPrompt string) (*call, error) {
	msgs := messages
	if systemPrompt != "" {
		msgs = append([]Message{{Role: RoleSystem, Content: systemPrompt}}, messages...)
	}

	apiKey := ""
	if g.cfg.Credential != "" {
		key, err := g.keeper.Open(g.cfg.Credential)
		if err != nil {
			return nil, fmt.Errorf("unseal credential for %s: %w", g.cfg.Provider, err)
		}
		apiKey = key
	}

	return &call{cfg: g.cfg, apiKey: apiKey, messages: msgs, httpc: g.httpc}, nil
}

// Chat sends the message list (with the optional system prompt prepended
// as a system-role message) and returns the reply text.
func (g *Gateway) Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	tracer := otel.Tracer("llm-gateway")
	ctx, span := tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.cfg.Provider),
		attribute.String("llm.model", g.cfg.Model),
		attribute.Int("llm.messages", len(messages)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return "", &TransportError{Provider: g.cfg.Provider, Err: err}
	}

	c, err := g.newCall(messages, systemPrompt)
	if err != nil {
		return "", err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.adapter.chat(ctx, c)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("llm.circuit_open", true))
			return "", &TransportError{Provider: g.cfg.Provider, Err: err}
		}
		span.SetAttributes(attribute.Bool("llm.error", true))
		return "", err
	}

	return result.(string), nil
}

// ChatStream streams the reply through fn chunk by chunk and returns the
// full text produced, including on cancellation: the returned string is
// exactly what fn has seen.
func (g *Gateway) ChatStream(ctx context.Context, messages []Message, systemPrompt string, fn func(string)) (string, error) {
	tracer := otel.Tracer("llm-gateway")
	ctx, span := tracer.Start(ctx, "llm.chat_stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.cfg.Provider),
		attribute.String("llm.model", g.cfg.Model),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return "", &TransportError{Provider: g.cfg.Provider, Err: err}
	}

	c, err := g.newCall(messages, systemPrompt)
	if err != nil {
		return "", err
	}

	// Stream outcomes feed the same breaker as blocking calls.
	// Cancellation is the caller's choice, not a provider failure, so it
	// counts as a success and is handed back after the breaker settles.
	var reply string
	var cancelErr error
	_, err = g.breaker.Execute(func() (interface{}, error) {
		var streamErr error
		reply, streamErr = g.adapter.stream(ctx, c, fn)
		if streamErr != nil && ctx.Err() != nil {
			cancelErr = streamErr
			return nil, nil
		}
		return nil, streamErr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("llm.circuit_open", true))
			return "", &TransportError{Provider: g.cfg.Provider, Err: err}
		}
		span.SetAttributes(attribute.Bool("llm.error", true))
		return reply, err
	}
	if cancelErr != nil {
		return reply, cancelErr
	}
	return reply, nil
}

package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"coremind-platform/internal/knowledge"
	"coremind-platform/internal/llm"
)

// fakeGateway records the last call and returns a scripted reply or error.
type fakeGateway struct {
	reply        string
	err          error
	streamChunks []string
	streamErr    error

	lastMessages []llm.Message
	lastPrompt   string
}

func (f *fakeGateway) Provider() string { return "fake" }

func (f *fakeGateway) Chat(ctx context.Context, messages []llm.Message, systemPrompt string) (string, error) {
	f.lastMessages = messages
	f.lastPrompt = systemPrompt
	return f.reply, f.err
}

func (f *fakeGateway) ChatStream(ctx context.Context, messages []llm.Message, systemPrompt string, fn func(string)) (string, error) {
	f.lastMessages = messages
	f.lastPrompt = systemPrompt

	var full strings.Builder
	for _, c := range f.streamChunks {
		full.WriteString(c)
		fn(c)
	}
	if f.streamErr != nil {
		return full.String(), f.streamErr
	}
	return full.String(), nil
}

// fakeRetriever returns scripted hits and counts searches.
type fakeRetriever struct {
	name     string
	hits     []knowledge.Hit
	err      error
	searches int
}

func (f *fakeRetriever) Name() string { return f.name }

func (f *fakeRetriever) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]knowledge.Hit, error) {
	f.searches++
	return f.hits, f.err
}

func newTestEngine(t *testing.T, gw ChatProvider, retrievers ...Retriever) *Engine {
	t.Helper()

	e, err := NewEngine(EngineOptions{
		Gateway:      gw,
		Retrievers:   retrievers,
		Capabilities: Capabilities{KnowledgeBase: len(retrievers) > 0},
		SystemPrompt: "base persona",
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestChatAppendsBothTurnsToMemory(t *testing.T) {
	gw := &fakeGateway{reply: "the answer"}
	e := newTestEngine(t, gw)

	res, err := e.Chat(context.Background(), "a question")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "the answer" || res.Degraded {
		t.Errorf("unexpected result: %+v", res)
	}

	msgs := e.Memory().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || msgs[1].Role != llm.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "the answer" {
		t.Errorf("assistant message = %q", msgs[1].Content)
	}
}

func TestChatRetrievesContextForInformationalQuery(t *testing.T) {
	gw := &fakeGateway{reply: "grounded answer"}
	r := &fakeRetriever{name: "docs", hits: []knowledge.Hit{
		{ID: "1", Content: "machine learning is statistics at scale", Metadata: map[string]string{"title": "ml-intro"}},
	}}
	e := newTestEngine(t, gw, r)

	res, err := e.Chat(context.Background(), "什么是机器学习")
	if err != nil {
		t.Fatal(err)
	}

	if r.searches != 1 {
		t.Errorf("expected one retrieval, got %d", r.searches)
	}
	if !res.UsedKnowledge || len(res.KnowledgeHits) != 1 {
		t.Errorf("provenance missing: %+v", res)
	}
	if !strings.Contains(gw.lastPrompt, "[source 1 - docs]") {
		t.Errorf("context block not labeled with the collection name:\n%s", gw.lastPrompt)
	}
	if !strings.Contains(gw.lastPrompt, "machine learning is statistics at scale") {
		t.Errorf("chunk content missing from system prompt:\n%s", gw.lastPrompt)
	}
	if !strings.HasPrefix(gw.lastPrompt, "base persona") {
		t.Errorf("base prompt not preserved:\n%s", gw.lastPrompt)
	}
}

func TestContextBlocksNameTheSourceCollection(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	r := &fakeRetriever{name: "product-docs", hits: []knowledge.Hit{
		{ID: "1", Content: "warranty covers two years"},
	}}
	e := newTestEngine(t, gw, r)

	if _, err := e.Chat(context.Background(), "解释保修条款"); err != nil {
		t.Fatal(err)
	}

	// The label carries the collection name even when the hit has no
	// metadata at all.
	if !strings.Contains(gw.lastPrompt, "[source 1 - product-docs]") {
		t.Errorf("collection name absent from context label:\n%s", gw.lastPrompt)
	}
	if strings.Contains(gw.lastPrompt, "knowledge base]") {
		t.Errorf("placeholder label used despite a named collection:\n%s", gw.lastPrompt)
	}
}

func TestChatSkipsRetrievalForActionQuery(t *testing.T) {
	gw := &fakeGateway{reply: "done"}
	r := &fakeRetriever{name: "docs"}

	e, err := NewEngine(EngineOptions{
		Gateway:      gw,
		Retrievers:   []Retriever{r},
		Capabilities: Capabilities{KnowledgeBase: true, Interface: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Chat(context.Background(), "删除这条订单记录")
	if err != nil {
		t.Fatal(err)
	}
	if r.searches != 0 {
		t.Errorf("action query should not trigger retrieval, got %d searches", r.searches)
	}
	if res.UsedKnowledge {
		t.Error("result claims knowledge use without retrieval")
	}
}

func TestChatDegradesOnRetrievalFailure(t *testing.T) {
	gw := &fakeGateway{reply: "answer without context"}
	r := &fakeRetriever{name: "docs", err: fmt.Errorf("index unavailable")}
	e := newTestEngine(t, gw, r)

	res, err := e.Chat(context.Background(), "什么是机器学习")
	if err != nil {
		t.Fatal(err)
	}
	if res.Degraded {
		t.Error("retrieval failure must not mark the turn degraded")
	}
	if res.UsedKnowledge || len(res.KnowledgeHits) != 0 {
		t.Errorf("failed retrieval leaked hits: %+v", res)
	}
	if gw.lastPrompt != "base persona" {
		t.Errorf("expected bare prompt without context, got:\n%s", gw.lastPrompt)
	}
}

func TestChatDegradedReplyOnAuthError(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("call failed: %w", llm.ErrAuth)}
	e := newTestEngine(t, gw)

	res, err := e.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if !strings.Contains(res.Reply, "authentication") {
		t.Errorf("degraded reply does not name the failure class: %q", res.Reply)
	}

	// The degraded reply still lands in memory so the history stays
	// consistent with what the user saw.
	msgs := e.Memory().Messages()
	if len(msgs) != 2 || msgs[1].Content != res.Reply {
		t.Errorf("degraded reply not recorded: %+v", msgs)
	}
}

func TestChatDegradedReplyOnRateLimit(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("call failed: %w", llm.ErrRateLimited)}
	e := newTestEngine(t, gw)

	res, err := e.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || !strings.Contains(res.Reply, "rate limiting") {
		t.Errorf("unexpected degraded reply: %q", res.Reply)
	}
}

func TestChatDegradedReplyOnTransportError(t *testing.T) {
	gw := &fakeGateway{err: &llm.TransportError{Provider: "fake", Err: fmt.Errorf("connection refused")}}
	e := newTestEngine(t, gw)

	res, err := e.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || !strings.Contains(res.Reply, "did not respond") {
		t.Errorf("unexpected degraded reply: %q", res.Reply)
	}
	if strings.Contains(res.Reply, "connection refused") {
		t.Errorf("degraded reply leaks transport detail: %q", res.Reply)
	}
}

func TestChatStreamPersistsPartialOnCancellation(t *testing.T) {
	gw := &fakeGateway{streamChunks: []string{"partial ", "reply"}, streamErr: context.Canceled}
	e := newTestEngine(t, gw)

	var seen strings.Builder
	res, err := e.ChatStream(context.Background(), "hello", func(c string) {
		seen.WriteString(c)
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Reply != "partial reply" || res.Reply != seen.String() {
		t.Errorf("partial reply mismatch: result %q, seen %q", res.Reply, seen.String())
	}

	msgs := e.Memory().Messages()
	if len(msgs) != 2 || msgs[1].Content != "partial reply" {
		t.Errorf("partial reply not persisted: %+v", msgs)
	}
}

func TestChatStreamDegradesOnProviderError(t *testing.T) {
	gw := &fakeGateway{streamErr: fmt.Errorf("call failed: %w", llm.ErrRateLimited)}
	e := newTestEngine(t, gw)

	var seen strings.Builder
	res, err := e.ChatStream(context.Background(), "hello", func(c string) {
		seen.WriteString(c)
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if seen.String() != res.Reply {
		t.Errorf("degraded reply not streamed to caller: %q vs %q", seen.String(), res.Reply)
	}
}

func TestChatHistoryExcludesSystemMessages(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	e := newTestEngine(t, gw)
	e.Memory().SetSystemMessage("pinned persona")

	if _, err := e.Chat(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	for _, m := range gw.lastMessages {
		if m.Role == llm.RoleSystem {
			t.Errorf("system message leaked into history: %+v", m)
		}
	}
}

func TestNewEngineRequiresGateway(t *testing.T) {
	if _, err := NewEngine(EngineOptions{}); err == nil {
		t.Error("expected construction to fail without a gateway")
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const qwenCompatibleBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// qwenAdapter serves Alibaba DashScope. By default (and whenever the
// base URL contains "compatible-mode") it speaks the OpenAI dialect.
// A legacy base URL selects the old generation API:
//
// Request: POST {base}/api/v1/services/aigc/text-generation/generation
//
//	{"model", "input": {"messages": [...]}, "parameters": {"temperature", "max_tokens"}}
//
// Reply envelope: {"output": {"choices": [{"message": {"content": "..."}}]}};
// compatible-mode replies carry plain OpenAI "choices".
type qwenAdapter struct {
	compat *openAICompat
}

func newQwenAdapter() *qwenAdapter {
	return &qwenAdapter{compat: &openAICompat{provider: ProviderQwen, defaultBaseURL: qwenCompatibleBaseURL}}
}

func (a *qwenAdapter) legacy(cfg ProviderConfig) bool {
	return cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "compatible-mode")
}

func (a *qwenAdapter) chat(ctx context.Context, c *call) (string, error) {
	if !a.legacy(c.cfg) {
		return a.compat.chat(ctx, c)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/")
	if !strings.HasSuffix(url, "/generation") {
		url += "/api/v1/services/aigc/text-generation/generation"
	}

	body, err := json.Marshal(map[string]any{
		"model": c.cfg.Model,
		"input": map[string]any{"messages": c.messages},
		"parameters": map[string]any{
			"temperature": c.cfg.Temperature,
			"max_tokens":  c.cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: ProviderQwen, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Provider: ProviderQwen, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderQwen, resp.StatusCode, raw)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Output struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &MalformedResponseError{Provider: ProviderQwen, Detail: err.Error()}
	}
	if len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}
	if len(parsed.Output.Choices) > 0 {
		return parsed.Output.Choices[0].Message.Content, nil
	}
	return "", &MalformedResponseError{Provider: ProviderQwen, Detail: "no choices in envelope"}
}

func (a *qwenAdapter) stream(ctx context.Context, c *call, fn func(string)) (string, error) {
	if !a.legacy(c.cfg) {
		return a.compat.stream(ctx, c, fn)
	}

	// The legacy generation API has no SSE support worth carrying;
	// deliver the whole reply as one chunk.
	reply, err := a.chat(ctx, c)
	if err != nil {
		return "", err
	}
	fn(reply)
	return reply, nil
}

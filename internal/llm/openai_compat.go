package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// openAICompat serves every provider speaking the OpenAI chat
// completions dialect: OpenAI itself, DeepSeek, Zhipu, Moonshot and
// Qwen in DashScope compatible-mode.
//
// Request: POST {base}/chat/completions
//
//	{"model", "messages", "temperature", "max_tokens"[, "stream"]}
//
// Reply envelope: {"choices": [{"message": {"content": "..."}}]};
// streaming replies arrive as SSE "data:" lines carrying
// {"choices": [{"delta": {"content": "..."}}]} terminated by [DONE].
type openAICompat struct {
	provider       string
	defaultBaseURL string
}

func (a *openAICompat) endpoint(cfg ProviderConfig) string {
	base := cfg.BaseURL
	if base == "" {
		base = a.defaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

func (a *openAICompat) request(ctx context.Context, c *call, stream bool) (*http.Request, error) {
	payload := map[string]any{
		"model":       c.cfg.Model,
		"messages":    c.messages,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}
	if stream {
		payload["stream"] = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(c.cfg), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *openAICompat) chat(ctx context.Context, c *call) (string, error) {
	req, err := a.request(ctx, c, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: a.provider, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Provider: a.provider, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(a.provider, resp.StatusCode, raw)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &MalformedResponseError{Provider: a.provider, Detail: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return "", &MalformedResponseError{Provider: a.provider, Detail: "empty choices"}
	}
	return parsed.Choices[0].Message.Content, nil
}

func (a *openAICompat) stream(ctx context.Context, c *call, fn func(string)) (string, error) {
	req, err := a.request(ctx, c, true)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: a.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", statusError(a.provider, resp.StatusCode, raw)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), &MalformedResponseError{Provider: a.provider, Detail: fmt.Sprintf("bad stream chunk: %v", err)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			fn(delta)
		}

		if err := ctx.Err(); err != nil {
			// Hand back exactly what was produced before cancellation.
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		return full.String(), &TransportError{Provider: a.provider, Err: err}
	}

	return full.String(), nil
}

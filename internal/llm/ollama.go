package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaAdapter serves a local Ollama deployment. It requires no
// credential. Ollama has no system role, so system messages are folded
// into the first user message.
//
// Request: POST {base}/api/chat
//
//	{"model", "messages", "stream", "options": {"temperature", "num_predict"}}
//
// Reply envelope: {"message": {"content": "..."}}; streaming replies are
// newline-delimited JSON objects of the same shape with a "done" flag.
type ollamaAdapter struct{}

func (a *ollamaAdapter) endpoint(cfg ProviderConfig) string {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaBaseURL
	}
	return strings.TrimRight(base, "/") + "/api/chat"
}

// foldSystem merges system message content into the first user message.
func foldSystem(messages []Message) []Message {
	var system []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
		} else {
			rest = append(rest, m)
		}
	}
	if len(system) == 0 {
		return rest
	}

	prefix := strings.Join(system, "\n\n")
	for i, m := range rest {
		if m.Role == RoleUser {
			rest[i].Content = prefix + "\n\n" + m.Content
			return rest
		}
	}
	return append([]Message{{Role: RoleUser, Content: prefix}}, rest...)
}

func (a *ollamaAdapter) request(ctx context.Context, c *call, stream bool) (*http.Request, error) {
	body, err := json.Marshal(map[string]any{
		"model":    c.cfg.Model,
		"messages": foldSystem(c.messages),
		"stream":   stream,
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(c.cfg), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *ollamaAdapter) chat(ctx context.Context, c *call) (string, error) {
	req, err := a.request(ctx, c, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: ProviderOllama, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Provider: ProviderOllama, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderOllama, resp.StatusCode, raw)
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &MalformedResponseError{Provider: ProviderOllama, Detail: err.Error()}
	}
	return parsed.Message.Content, nil
}

func (a *ollamaAdapter) stream(ctx context.Context, c *call, fn func(string)) (string, error) {
	req, err := a.request(ctx, c, true)
	if err != nil {
		return "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: ProviderOllama, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", statusError(ProviderOllama, resp.StatusCode, raw)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return full.String(), &MalformedResponseError{Provider: ProviderOllama, Detail: err.Error()}
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			fn(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}

		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		return full.String(), &TransportError{Provider: ProviderOllama, Err: err}
	}

	return full.String(), nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// customAdapter serves self-hosted OpenAI-ish gateways. A base URL is
// required; extra config fields are merged into the payload and extra
// headers into the request.
//
// Reply extraction tries, in order: OpenAI "choices", a flat "content"
// field, a flat "text" field.
type customAdapter struct{}

func (a *customAdapter) chat(ctx context.Context, c *call) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("custom provider requires a base URL")
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	payload := map[string]any{}
	for k, v := range c.cfg.Extra {
		payload[k] = v
	}
	payload["model"] = c.cfg.Model
	payload["messages"] = c.messages
	payload["temperature"] = c.cfg.Temperature
	payload["max_tokens"] = c.cfg.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Provider: ProviderCustom, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Provider: ProviderCustom, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderCustom, resp.StatusCode, raw)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Content string `json:"content"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &MalformedResponseError{Provider: ProviderCustom, Detail: err.Error()}
	}
	switch {
	case len(parsed.Choices) > 0:
		return parsed.Choices[0].Message.Content, nil
	case parsed.Content != "":
		return parsed.Content, nil
	case parsed.Text != "":
		return parsed.Text, nil
	}
	return "", &MalformedResponseError{Provider: ProviderCustom, Detail: "no reply field in envelope"}
}

func (a *customAdapter) stream(ctx context.Context, c *call, fn func(string)) (string, error) {
	// Custom gateways advertise no common streaming dialect; deliver
	// the whole reply as one chunk.
	reply, err := a.chat(ctx, c)
	if err != nil {
		return "", err
	}
	fn(reply)
	return reply, nil
}

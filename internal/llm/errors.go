package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the two failure classes callers most often branch
// on. Both are wrapped with provider detail; test with errors.Is.
var (
	// ErrAuth covers 401/403 responses: bad, inactive or underprivileged keys.
	ErrAuth = errors.New("provider authentication failed")

	// ErrRateLimited covers 429 responses.
	ErrRateLimited = errors.New("provider rate limited")
)

// TransportError is a network-level failure (connection, timeout) before
// any provider response was received.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError means the provider answered 2xx but the
// envelope did not contain a reply in the documented shape.
type MalformedResponseError struct {
	Provider string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Provider, e.Detail)
}

// ProviderError is any other non-2xx response, with a best-effort
// message extracted from the body.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, e.Message)
}

// statusError maps an HTTP status + body to the taxonomy.
func statusError(provider string, status int, body []byte) error {
	msg := extractErrorMessage(body)
	switch status {
	case 401, 403:
		return fmt.Errorf("%w: %s returned %d: %s", ErrAuth, provider, status, msg)
	case 429:
		return fmt.Errorf("%w: %s returned 429: %s", ErrRateLimited, provider, msg)
	default:
		return &ProviderError{Provider: provider, Status: status, Message: msg}
	}
}

// extractErrorMessage tries the common error envelopes before falling
// back to the raw (truncated) body.
func extractErrorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.Message != "" {
			return flat.Message
		}
		if flat.Error != "" {
			return flat.Error
		}
	}

	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

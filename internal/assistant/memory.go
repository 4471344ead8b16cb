// Package assistant composes the chat pipeline: bounded conversation
// memory, intent routing, knowledge retrieval and the orchestration of
// one request/response cycle.
package assistant

import (
	"sync"

	"coremind-platform/internal/llm"
)

// Memory is a bounded, ordered in-process message history for one
// conversation. System messages are pinned at the front and exempt from
// trimming. Durable conversation rows are the surrounding layer's job;
// Memory only serves one orchestration call.
type Memory struct {
	mu          sync.Mutex
	maxMessages int
	messages    []llm.Message
}

const defaultMaxMessages = 20

func NewMemory(maxMessages int) *Memory {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Memory{maxMessages: maxMessages}
}

// AddMessage appends a message and trims the non-system tail to the most
// recent maxMessages - systemCount entries when the total exceeds
// maxMessages.
func (m *Memory) AddMessage(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, llm.Message{Role: role, Content: content})

	if len(m.messages) <= m.maxMessages {
		return
	}

	var system, other []llm.Message
	for _, msg := range m.messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}

	keep := m.maxMessages - len(system)
	if keep < 0 {
		keep = 0
	}
	if len(other) > keep {
		other = other[len(other)-keep:]
	}

	m.messages = append(system, other...)
}

// Messages returns a copy of the history.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// LastMessages returns a copy of the most recent n messages.
func (m *Memory) LastMessages(n int) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > len(m.messages) {
		n = len(m.messages)
	}
	out := make([]llm.Message, n)
	copy(out, m.messages[len(m.messages)-n:])
	return out
}

// SetSystemMessage replaces any existing system message(s) with exactly
// one, inserted at position 0.
func (m *Memory) SetSystemMessage(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.Role != llm.RoleSystem {
			kept = append(kept, msg)
		}
	}

	m.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: content}}, kept...)
}

// Clear removes all messages, including the system message.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// CountTokens is a rough estimate (about 3 characters per token across
// mixed English/CJK text). Advisory only, never used for hard truncation.
func (m *Memory) CountTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, msg := range m.messages {
		total += len(msg.Content)
	}
	return total / 3
}

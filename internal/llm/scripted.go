package llm

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// SCRIPTED CLIENT - deterministic provider for tests and offline use
// =============================================================================

// ScriptedClient replays queued responses in order. When the queue is empty
// it returns an error, which exercises callers' fallback paths.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []ChatCall
}

type scriptedResponse struct {
	text string
	err  error
}

// ChatCall records one observed request for assertions.
type ChatCall struct {
	Messages []Message
	Opts     ChatOptions
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

// Queue appends a successful response.
func (c *ScriptedClient) Queue(text string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{text: text})
	return c
}

// QueueError appends a failing response.
func (c *ScriptedClient) QueueError(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{err: err})
	return c
}

// Chat pops the next queued response.
func (c *ScriptedClient) Chat(_ context.Context, messages []Message, opts ChatOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, ChatCall{Messages: messages, Opts: opts})
	if len(c.responses) == 0 {
		return "", fmt.Errorf("scripted client exhausted after %d calls", len(c.calls))
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next.text, next.err
}

// Calls returns the recorded requests.
func (c *ScriptedClient) Calls() []ChatCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatCall, len(c.calls))
	copy(out, c.calls)
	return out
}

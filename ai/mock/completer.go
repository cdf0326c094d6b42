package mock

import (
	"context"
	"strings"

	"github.com/poiesic/ktsearch/ai"
)

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via function fields.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, uses default canned behavior.
	CompleteFunc func(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error)

	callCount int
	prompts   []string
}

// NewMockCompleter creates a mock completer with default canned behavior.
// Note: Returns concrete type to allow test assertions via GetMockCompleter().
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns a short deterministic answer derived from the prompt.
// Default behavior: echoes the first words of the prompt so tests can verify
// the prompt reached the model.
func (m *MockCompleter) Complete(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error) {
	m.callCount++
	m.prompts = append(m.prompts, prompt)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, opts...)
	}

	words := strings.Fields(prompt)
	if len(words) > 12 {
		words = words[:12]
	}
	return "Com base nos trechos fornecidos: " + strings.Join(words, " "), nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return m.callCount
}

// LastPrompt returns the most recent prompt passed to Complete,
// or an empty string if Complete has not been called.
func (m *MockCompleter) LastPrompt() string {
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears the call count, recorded prompts, and custom functions.
func (m *MockCompleter) Reset() {
	m.callCount = 0
	m.prompts = nil
	m.CompleteFunc = nil
}

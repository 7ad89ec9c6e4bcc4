package testutils

import (
	"context"
	"sync"

	"github.com/clidram/medrag/pkg/llm"
)

var _ llm.Generator = (*MockGenerator)(nil)

// MockGenerator is a test generator with a canned answer and call recording.
// Generation calls are mutex-guarded so concurrency tests can share one.
type MockGenerator struct {
	mu sync.Mutex

	// AnswerText is returned from Answer and Chat.
	AnswerText string

	// Err, when set, is returned from every generation call.
	Err error

	// Model is what ActiveModel reports.
	Model string

	// Recorded inputs from the last generation call.
	LastPrompt      string
	LastContext     string
	LastInstruction string
	LastHistory     []llm.Turn

	// Calls counts generation attempts.
	Calls int
}

func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{AnswerText: answer, Model: "mock-model"}
}

func (m *MockGenerator) Answer(_ context.Context, prompt, contextBlock, systemInstruction string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastPrompt = prompt
	m.LastContext = contextBlock
	m.LastInstruction = systemInstruction
	if m.Err != nil {
		return "", m.Err
	}
	return m.AnswerText, nil
}

func (m *MockGenerator) Chat(_ context.Context, history []llm.Turn, prompt, contextBlock, systemInstruction string) (string, []llm.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastPrompt = prompt
	m.LastContext = contextBlock
	m.LastInstruction = systemInstruction
	m.LastHistory = history
	if m.Err != nil {
		return "", nil, m.Err
	}
	full := llm.BuildPrompt(prompt, contextBlock, systemInstruction)
	updated := append(append([]llm.Turn{}, history...),
		llm.Turn{Role: llm.RoleUser, Text: full},
		llm.Turn{Role: llm.RoleModel, Text: m.AnswerText},
	)
	return m.AnswerText, updated, nil
}

func (m *MockGenerator) Reconfigure(apiKey, model string) error {
	if model != "" {
		m.Model = model
	}
	return nil
}

func (m *MockGenerator) ListModels(context.Context) ([]string, error) {
	return []string{m.Model}, nil
}

func (m *MockGenerator) ActiveModel() string {
	return m.Model
}

func (m *MockGenerator) Close() error {
	return nil
}

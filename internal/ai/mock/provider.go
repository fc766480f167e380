package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/errorwatch/internal/ai"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Call records the arguments of one Chat invocation.
type Call struct {
	Messages []models.ChatMessage
	Options  models.ChatOptions
}

// MockProvider satisfies models.LLMProvider for testing.
type MockProvider struct {
	Name_    string
	ChatFunc func(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Chat(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Messages: messages, Options: opts})
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages, opts)
	}
	return "", nil
}

// Calls returns a copy of every Chat invocation so far.
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewMockProvider returns a MockProvider that answers with a fixed analysis.
func NewMockProvider() *MockProvider {
	return NewStaticProvider("Root cause: simulated failure from mock provider.\nImpact: tests only.\nFix: none required.")
}

// NewStaticProvider returns a MockProvider that always answers with answer.
func NewStaticProvider(answer string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ChatFunc: func(_ context.Context, _ []models.ChatMessage, _ models.ChatOptions) (string, error) {
			return answer, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ChatFunc: func(_ context.Context, _ []models.ChatMessage, _ models.ChatOptions) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ChatFunc: func(ctx context.Context, _ []models.ChatMessage, _ models.ChatOptions) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements LLMProvider.
var _ models.LLMProvider = (*MockProvider)(nil)

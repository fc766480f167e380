package ollama

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errorwatch/internal/ai/llmhttp"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Provider implements models.LLMProvider using Ollama's native chat endpoint.
// Ollama has no search tool, so ChatOptions.WebSearch is ignored.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

type chatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type chatReply struct {
	Message models.ChatMessage `json:"message"`
	Done    bool               `json:"done"`
}

func (p *Provider) Chat(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	var reply chatReply
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	req := chatRequest{Model: model, Messages: messages, Stream: false}
	if err := llmhttp.PostJSON(ctx, p.client, p.Name(), url, nil, req, &reply); err != nil {
		return "", err
	}

	return llmhttp.Answer(p.Name(), reply.Message.Content)
}

var _ models.LLMProvider = (*Provider)(nil)

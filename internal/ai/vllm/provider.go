package vllm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errorwatch/internal/ai/llmhttp"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Provider implements models.LLMProvider against vLLM's OpenAI-compatible server.
// WebSearch is ignored.
type Provider struct {
	cfg    config.VLLMConfig
	client *http.Client
}

func NewProvider(cfg config.VLLMConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "vllm" }

type completionRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
}

type completionReply struct {
	Choices []struct {
		Message      models.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) Chat(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	var reply completionReply
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	if err := llmhttp.PostJSON(ctx, p.client, p.Name(), url, nil, completionRequest{Model: model, Messages: messages}, &reply); err != nil {
		return "", err
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: no choices", p.Name(), llmhttp.ErrInvalidResponse)
	}

	return llmhttp.Answer(p.Name(), reply.Choices[0].Message.Content)
}

var _ models.LLMProvider = (*Provider)(nil)

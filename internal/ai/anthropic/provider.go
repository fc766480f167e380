package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errorwatch/internal/ai/llmhttp"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	webSearchMaxUses = 5
)

// Provider implements models.LLMProvider using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string               `json:"model"`
	MaxTokens int                  `json:"max_tokens"`
	System    string               `json:"system,omitempty"`
	Messages  []models.ChatMessage `json:"messages"`
	Tools     []serverTool         `json:"tools,omitempty"`
}

type serverTool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type messagesReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (p *Provider) Chat(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	system, turns := llmhttp.SplitSystem(messages)
	req := messagesRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  turns,
	}
	if opts.WebSearch {
		req.Tools = []serverTool{{Type: "web_search_20250305", Name: "web_search", MaxUses: webSearchMaxUses}}
	}

	var reply messagesReply
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/messages"
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}
	if err := llmhttp.PostJSON(ctx, p.client, p.Name(), url, headers, req, &reply); err != nil {
		return "", err
	}

	// With web search the answer is split across text blocks around tool results.
	var b strings.Builder
	for _, c := range reply.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return llmhttp.Answer(p.Name(), b.String())
}

var _ models.LLMProvider = (*Provider)(nil)

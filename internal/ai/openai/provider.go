package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errorwatch/internal/ai/llmhttp"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Provider implements models.LLMProvider using the OpenAI Responses API.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "openai" }

type responsesRequest struct {
	Model string               `json:"model"`
	Input []models.ChatMessage `json:"input"`
	Tools []tool               `json:"tools,omitempty"`
}

type tool struct {
	Type string `json:"type"`
}

type responsesReply struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// text prefers the aggregated output_text and otherwise joins every output_text block.
func (r responsesReply) text() string {
	if strings.TrimSpace(r.OutputText) != "" {
		return r.OutputText
	}
	var parts []string
	for _, item := range r.Output {
		for _, c := range item.Content {
			if c.Type == "output_text" && strings.TrimSpace(c.Text) != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (p *Provider) Chat(ctx context.Context, messages []models.ChatMessage, opts models.ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	req := responsesRequest{Model: model, Input: messages}
	if opts.WebSearch {
		req.Tools = []tool{{Type: "web_search"}}
	}

	var reply responsesReply
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/responses"
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if err := llmhttp.PostJSON(ctx, p.client, p.Name(), url, headers, req, &reply); err != nil {
		return "", err
	}

	return llmhttp.Answer(p.Name(), reply.text())
}

var _ models.LLMProvider = (*Provider)(nil)

// Package llmhttp holds the HTTP plumbing shared by every LLM provider adapter:
// one JSON POST helper and the mapping from transport failures to provider errors.
package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrQuotaExceeded       = errors.New("ai provider quota exceeded")
)

// StatusError is a non-2xx reply from a provider. It unwraps to the sentinel
// matching its status class.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case e.StatusCode >= 500:
		return ErrProviderUnavailable
	default:
		return ErrInvalidResponse
	}
}

// PostJSON sends body as JSON to url and decodes a 2xx reply into out.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", provider, ErrInferenceTimeout)
		}
		return fmt.Errorf("%s: %w: %v", provider, ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", provider, ErrInferenceTimeout)
		}
		return fmt.Errorf("%s: %w: decode response: %v", provider, ErrInvalidResponse, err)
	}
	return nil
}

// errorMessage extracts {"error":{"message":...}} or {"error":"..."} and falls back to the raw body.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))

	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	return strings.TrimSpace(string(body))
}

// Answer trims s and reports ErrInvalidResponse when nothing is left.
func Answer(provider, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%s: %w: empty answer", provider, ErrInvalidResponse)
	}
	return s, nil
}

// SplitSystem separates system turns, joined by blank lines, from the rest of the conversation.
// Used by APIs that take the system prompt as a separate field.
func SplitSystem(messages []models.ChatMessage) (string, []models.ChatMessage) {
	var system []string
	rest := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

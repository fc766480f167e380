package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/errorwatch/internal/ai"
	"github.com/kiranshivaraju/errorwatch/internal/ai/ollama"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"answer"},"done":true}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL + "/", Model: "llama3"})
	assert.Equal(t, "ollama", p.Name())

	answer, err := p.Chat(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "q"}}, models.ChatOptions{WebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	_, hasTools := got["tools"]
	assert.False(t, hasTools)
}

func TestChat_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama9' not found"}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama9"})
	_, err := p.Chat(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "q"}}, models.ChatOptions{})
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "llama9")
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_GenerateText(t *testing.T) {
	var gotPath string
	var gotReq ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ollamaResponse{Response: "generated text", Done: true})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3.1")
	out, err := provider.GenerateText(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	assert.Equal(t, "/api/generate", gotPath)
	assert.Equal(t, "llama3.1", gotReq.Model)
	assert.Equal(t, "say hi", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
}

func TestOllamaProvider_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "missing")
	_, err := provider.GenerateText(context.Background(), "hi")
	assert.ErrorContains(t, err, "404")
}

func TestOpenAIProvider_GenerateText(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "chat reply"}},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "sk-test", "gpt-4")
	out, err := provider.GenerateText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "chat reply", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4")
	_, err := provider.GenerateText(context.Background(), "hello")
	assert.ErrorContains(t, err, "no choices")
}

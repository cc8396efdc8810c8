package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "llama3.2",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("  hello there  "))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	out, err := client.Complete(context.Background(), "system prompt", "user prompt",
		Options{Model: "llama3.2", Temperature: 0.1, MaxTokens: 100})

	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestComplete_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "model \"missing\" not found", "type": "api_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	_, err := client.Complete(context.Background(), "", "prompt", Options{Model: "missing"})

	require.Error(t, err)
	assert.Equal(t, KindModelNotFound, KindOf(err))
}

func TestComplete_ConnectionRefused(t *testing.T) {
	// Reserve a port and close the listener so nothing is listening.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(url, 2*time.Second, zerolog.Nop())
	_, err := client.Complete(context.Background(), "", "prompt", Options{Model: "llama3.2"})

	require.Error(t, err)
	assert.Equal(t, KindConnectionRefused, KindOf(err))
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("too late"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 50*time.Millisecond, zerolog.Nop())
	_, err := client.Complete(context.Background(), "", "prompt", Options{Model: "llama3.2"})

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestComplete_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("too late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	_, err := client.Complete(ctx, "", "prompt", Options{Model: "llama3.2"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// Cancellation comes from the caller, not the backend.
	assert.Equal(t, ErrorKind(""), KindOf(err))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "llama3.2", "object": "model"},
				{"id": "qwen2.5", "object": "model"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	models, err := client.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, models)
}

func TestProbe_NoModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []map[string]any{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	err := client.Probe(context.Background())

	require.Error(t, err)
	assert.Equal(t, KindModelNotFound, KindOf(err))
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(context.Canceled))
}

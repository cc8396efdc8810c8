// Package ollama provides the client for the local inference backend.
// Ollama serves an OpenAI-compatible API under /v1, so the transport is
// the standard chat-completion client pointed at the local server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Completer is the transport used by the classification and drafting
// clients. Satisfied by *Client; tests substitute a fake.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts Options) (string, error)
}

// Options carries per-call generation parameters.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client talks to a local Ollama instance.
type Client struct {
	api     *openai.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a client for the backend at serverURL. The timeout
// bounds every individual backend call.
func NewClient(serverURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	// Ollama ignores the API key but the client requires one.
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimSuffix(serverURL, "/") + "/v1"

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		timeout: timeout,
		logger:  logger.With().Str("component", "ollama").Logger(),
	}
}

// Complete sends one system+user prompt pair and returns the generated
// text. Transport failures are mapped onto the backend error taxonomy.
func (c *Client) Complete(ctx context.Context, system, user string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		// Caller-side cancellation is not a backend failure; pass it
		// through untranslated.
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("complete: %w", err)
		}
		return "", &Error{Kind: classifyTransportError(err), Op: "complete", Err: err}
	}

	c.logger.Debug().
		Str("model", opts.Model).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("Completion finished")

	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindInvalidResponse, Op: "complete",
			Err: errors.New("backend returned no choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ListModels returns the model names served by the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.api.ListModels(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("list_models: %w", err)
		}
		return nil, &Error{Kind: classifyTransportError(err), Op: "list_models", Err: err}
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Probe verifies the backend is reachable and serves at least one model.
func (c *Client) Probe(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return &Error{Kind: KindModelNotFound, Op: "probe",
			Err: errors.New("backend serves no models")}
	}
	return nil
}

// classifyTransportError maps raw transport errors onto the taxonomy.
// A 404 from Ollama means the requested model is not pulled; other API
// errors mean the backend answered but unusably.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 404 {
			return KindModelNotFound
		}
		return KindInvalidResponse
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnectionRefused
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectionRefused
	}

	// Not a network failure and not an API error: the backend behaved in
	// a way the client cannot interpret.
	return KindInvalidResponse
}

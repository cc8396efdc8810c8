// Package reply drafts response emails for messages that were judged to
// need one.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
	"smartmailbox/internal/ollama"
)

const (
	systemPrompt = "You are an assistant that writes reply emails on the " +
		"user's behalf. Write only the reply body, with no subject line, " +
		"no quoted original message and no commentary."

	// maxBodyRunes bounds the original message body included in the prompt.
	maxBodyRunes = 3000
)

// toneDirectives maps the configured reply tone to prompt wording.
// Unknown tones fall back to professional.
var toneDirectives = map[string]string{
	"professional": "Write in a professional, courteous business tone.",
	"friendly":     "Write in a warm, friendly tone.",
	"casual":       "Write in a relaxed, casual tone.",
}

// Drafter generates reply drafts through the inference backend.
type Drafter struct {
	backend ollama.Completer
	logger  zerolog.Logger
}

// New creates a Drafter on top of the given backend transport.
func New(backend ollama.Completer, logger zerolog.Logger) *Drafter {
	return &Drafter{
		backend: backend,
		logger:  logger.With().Str("component", "reply").Logger(),
	}
}

// Draft generates a reply for the message in the requested tone. A
// whitespace-only answer is retried once before being reported as an
// empty draft.
func (d *Drafter) Draft(ctx context.Context, msg *models.Message, tone string, opts ollama.Options) (*models.ReplyDraft, error) {
	prompt := buildPrompt(msg, tone)

	body, err := d.backend.Complete(ctx, systemPrompt, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("drafting reply: %w", err)
	}

	if strings.TrimSpace(body) == "" {
		d.logger.Warn().Str("message_id", msg.ID).Msg("Empty reply draft, retrying")
		body, err = d.backend.Complete(ctx, systemPrompt, prompt, opts)
		if err != nil {
			return nil, fmt.Errorf("drafting reply (retry): %w", err)
		}
		if strings.TrimSpace(body) == "" {
			return nil, &ollama.Error{Kind: ollama.KindEmptyDraft, Op: "draft"}
		}
	}

	return &models.ReplyDraft{
		ID:          uuid.NewString(),
		MessageID:   msg.ID,
		Body:        strings.TrimSpace(body),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func buildPrompt(msg *models.Message, tone string) string {
	directive, ok := toneDirectives[tone]
	if !ok {
		directive = toneDirectives["professional"]
	}

	var b strings.Builder
	b.WriteString("Write a reply to the following email. ")
	b.WriteString(directive)
	b.WriteString("\n\nOriginal email:\n")
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	from := msg.Sender
	if msg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", msg.SenderName, msg.Sender)
	}
	fmt.Fprintf(&b, "From: %s\n", from)
	if body := bodyForPrompt(msg); body != "" {
		fmt.Fprintf(&b, "Body:\n%s\n", body)
	}
	return b.String()
}

func bodyForPrompt(msg *models.Message) string {
	body := msg.BodyText
	if body == "" {
		body = msg.BodyHTML
	}
	runes := []rune(body)
	if len(runes) > maxBodyRunes {
		body = string(runes[:maxBodyRunes]) + "..."
	}
	return body
}

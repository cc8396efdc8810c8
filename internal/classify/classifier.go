// Package classify asks the inference backend which tags apply to a
// message. The backend is queried once per message with a combined prompt
// covering every active tag, so latency stays bounded by one call and tag
// set changes never touch downstream code.
package classify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
	"smartmailbox/internal/ollama"
)

const (
	systemPrompt = "You are an email classification assistant. " +
		"You judge which of the given tags apply to an email, strictly " +
		"following each tag's criteria, and answer only with JSON."

	// maxBodyRunes bounds the message body included in the prompt.
	maxBodyRunes = 2000

	strictRetryInstruction = "\n\nYour previous answer could not be parsed. " +
		"Respond with ONLY a JSON array, no prose, no code fences. Each " +
		"element must be an object with exactly the keys \"tag_id\" " +
		"(string), \"assigned\" (boolean) and \"reason\" (string)."
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Classifier obtains tag verdicts for messages.
type Classifier struct {
	backend ollama.Completer
	logger  zerolog.Logger
}

// New creates a Classifier on top of the given backend transport.
func New(backend ollama.Completer, logger zerolog.Logger) *Classifier {
	return &Classifier{
		backend: backend,
		logger:  logger.With().Str("component", "classify").Logger(),
	}
}

// Classify returns one verdict per active prompted tag, in the order the
// tags were given. Inactive and prompt-less tags are never sent to the
// backend and never appear in the result. An unparseable response is
// retried once with a stricter instruction before failing.
func (c *Classifier) Classify(ctx context.Context, msg *models.Message, activeTags []models.Tag, opts ollama.Options) ([]models.Verdict, error) {
	prompted := make([]models.Tag, 0, len(activeTags))
	for _, tag := range activeTags {
		if tag.Prompted() {
			prompted = append(prompted, tag)
		}
	}
	if len(prompted) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(msg, prompted)

	raw, err := c.backend.Complete(ctx, systemPrompt, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("classifying message: %w", err)
	}

	verdicts, err := c.parseVerdicts(raw, prompted)
	if err == nil {
		return verdicts, nil
	}

	c.logger.Warn().Err(err).Msg("Classification response unparseable, retrying with strict instruction")

	raw, retryErr := c.backend.Complete(ctx, systemPrompt, prompt+strictRetryInstruction, opts)
	if retryErr != nil {
		return nil, fmt.Errorf("classifying message (retry): %w", retryErr)
	}
	verdicts, err = c.parseVerdicts(raw, prompted)
	if err != nil {
		return nil, &ollama.Error{Kind: ollama.KindInvalidResponse, Op: "classify", Err: err}
	}
	return verdicts, nil
}

// buildPrompt renders the combined classification prompt: every tag's
// criteria plus the message content.
func buildPrompt(msg *models.Message, tags []models.Tag) string {
	var b strings.Builder

	b.WriteString("Decide for each tag below whether it applies to the email.\n\n")
	b.WriteString("Tags:\n")
	for _, tag := range tags {
		fmt.Fprintf(&b, "- tag_id: %s\n  criteria: %s\n", tag.ID, tag.Prompt)
	}

	b.WriteString("\nEmail:\n")
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "From: %s\n", formatAddress(msg.Sender, msg.SenderName))
	fmt.Fprintf(&b, "To: %s\n", formatAddress(msg.Recipient, msg.RecipientName))
	if body := promptBody(msg); body != "" {
		fmt.Fprintf(&b, "Body:\n%s\n", body)
	}

	b.WriteString("\nRespond with a JSON array containing one object per tag, ")
	b.WriteString(`in the form [{"tag_id": "...", "assigned": true, "reason": "..."}]. `)
	b.WriteString("Respond with the JSON array only.")

	return b.String()
}

func formatAddress(address, name string) string {
	if name != "" {
		return fmt.Sprintf("%s <%s>", name, address)
	}
	return address
}

// promptBody prefers plain text, falls back to tag-stripped HTML, and
// truncates to keep the prompt bounded.
func promptBody(msg *models.Message) string {
	body := msg.BodyText
	if body == "" && msg.BodyHTML != "" {
		body = strings.TrimSpace(htmlTagPattern.ReplaceAllString(msg.BodyHTML, ""))
	}
	runes := []rune(body)
	if len(runes) > maxBodyRunes {
		body = string(runes[:maxBodyRunes]) + "..."
	}
	return body
}

// parseVerdicts decodes the backend response into verdicts. Entries for
// unknown tag ids are dropped with a warning; duplicate entries for the
// same tag id resolve to the last one. Tags absent from the response get
// an unassigned verdict so partial answers stay representable.
func (c *Classifier) parseVerdicts(raw string, tags []models.Tag) ([]models.Verdict, error) {
	entries, err := decodeVerdictArray(raw)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(tags))
	for _, tag := range tags {
		known[tag.ID] = true
	}

	byTag := make(map[string]models.Verdict, len(entries))
	for _, entry := range entries {
		if entry.Assigned == nil {
			return nil, errors.New("verdict entry missing assigned field")
		}
		if !known[entry.TagID] {
			c.logger.Warn().Str("tag_id", entry.TagID).Msg("Dropping verdict for unknown tag")
			continue
		}
		byTag[entry.TagID] = models.Verdict{
			TagID:    entry.TagID,
			Assigned: *entry.Assigned,
			Reason:   strings.TrimSpace(entry.Reason),
		}
	}

	verdicts := make([]models.Verdict, 0, len(tags))
	for _, tag := range tags {
		if v, ok := byTag[tag.ID]; ok {
			verdicts = append(verdicts, v)
		} else {
			verdicts = append(verdicts, models.Verdict{TagID: tag.ID, Assigned: false})
		}
	}
	return verdicts, nil
}

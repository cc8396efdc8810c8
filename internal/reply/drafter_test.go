package reply

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmailbox/internal/models"
	"smartmailbox/internal/ollama"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, user string, _ ollama.Options) (string, error) {
	call := len(f.prompts)
	f.prompts = append(f.prompts, user)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	return "", nil
}

func testMessage() *models.Message {
	return &models.Message{
		ID:       "msg-1",
		Subject:  "Meeting tomorrow",
		Sender:   "alice@example.com",
		BodyText: "Can we meet at 10am tomorrow to discuss the report?",
	}
}

func TestDraft_ReturnsTrimmedDraft(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"\nHi Alice,\n\n10am works for me.\n"}}
	d := New(fake, zerolog.Nop())

	draft, err := d.Draft(context.Background(), testMessage(), "professional", ollama.Options{})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", draft.MessageID)
	assert.Equal(t, "Hi Alice,\n\n10am works for me.", draft.Body)
	assert.NotEmpty(t, draft.ID)
	assert.False(t, draft.GeneratedAt.IsZero())
	assert.False(t, draft.Edited)
}

func TestDraft_PromptCarriesToneAndOriginal(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"ok"}}
	d := New(fake, zerolog.Nop())

	_, err := d.Draft(context.Background(), testMessage(), "friendly", ollama.Options{})

	require.NoError(t, err)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "friendly tone")
	assert.Contains(t, fake.prompts[0], "Meeting tomorrow")
	assert.Contains(t, fake.prompts[0], "alice@example.com")
}

func TestDraft_UnknownToneFallsBackToProfessional(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"ok"}}
	d := New(fake, zerolog.Nop())

	_, err := d.Draft(context.Background(), testMessage(), "sarcastic", ollama.Options{})

	require.NoError(t, err)
	assert.Contains(t, fake.prompts[0], "professional")
}

func TestDraft_EmptyAnswerRetriedOnce(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"   \n", "Second try body."}}
	d := New(fake, zerolog.Nop())

	draft, err := d.Draft(context.Background(), testMessage(), "professional", ollama.Options{})

	require.NoError(t, err)
	assert.Len(t, fake.prompts, 2)
	assert.Equal(t, "Second try body.", draft.Body)
}

func TestDraft_EmptyAfterRetry(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"", ""}}
	d := New(fake, zerolog.Nop())

	_, err := d.Draft(context.Background(), testMessage(), "professional", ollama.Options{})

	require.Error(t, err)
	assert.Equal(t, ollama.KindEmptyDraft, ollama.KindOf(err))
}

func TestDraft_BackendErrorPassthrough(t *testing.T) {
	fake := &fakeCompleter{errs: []error{&ollama.Error{Kind: ollama.KindTimeout, Op: "chat"}}}
	d := New(fake, zerolog.Nop())

	_, err := d.Draft(context.Background(), testMessage(), "professional", ollama.Options{})

	require.Error(t, err)
	assert.Equal(t, ollama.KindTimeout, ollama.KindOf(err))
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmailbox/internal/ollama"
	"smartmailbox/internal/storage"
)

// fakeBackend scripts the inference side. Classification and drafting
// calls are told apart by their system prompts.
type fakeBackend struct {
	mu           sync.Mutex
	classifyResp func(user string) string
	draftResp    string
	failSubject  string
	delay        time.Duration
	calls        int
}

func (f *fakeBackend) Complete(ctx context.Context, system, user string, _ ollama.Options) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		// Honor cancellation the way a real transport would.
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", &ollama.Error{Kind: ollama.KindConnectionRefused, Op: "chat", Err: ctx.Err()}
		}
	}
	if f.failSubject != "" && strings.Contains(user, f.failSubject) {
		return "", &ollama.Error{Kind: ollama.KindConnectionRefused, Op: "chat"}
	}
	if strings.Contains(system, "classification") {
		if f.classifyResp != nil {
			return f.classifyResp(user), nil
		}
		return "[]", nil
	}
	return f.draftResp, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func assignTags(ids ...string) func(string) string {
	return func(string) string {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprintf(`{"tag_id": %q, "assigned": true, "reason": "matched"}`, id)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
}

func writeEML(t *testing.T, dir, name, subject string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	raw := "From: sender@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n" +
		"\r\n" +
		"Body of " + subject + ".\r\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

func newTestPipeline(t *testing.T, backend *fakeBackend) (*Pipeline, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	factory := func(string, time.Duration) ollama.Completer { return backend }
	return New(store, factory, 256, zerolog.Nop()), store
}

// drain collects events in the background so the worker never blocks on
// a full buffer.
func drain(p *Pipeline) (func() []Event, func()) {
	var mu sync.Mutex
	var events []Event
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-p.Events():
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			case <-done:
				return
			}
		}
	}()
	snapshot := func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}
	return snapshot, func() { close(done) }
}

func waitTerminal(t *testing.T, p *Pipeline, jobID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := p.Status(jobID)
		return ok && (st.Stage == string(StageDone) || st.Stage == string(StageFailed))
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPipeline_UrgentInvoiceGetsTagged(t *testing.T) {
	backend := &fakeBackend{classifyResp: assignTags("important")}
	p, store := newTestPipeline(t, backend)
	snapshot, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "invoice.eml", "Invoice overdue")
	accepted, rejected, err := p.Submit([]string{path})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Empty(t, rejected)

	waitTerminal(t, p, accepted[0].ID)
	st, _ := p.Status(accepted[0].ID)
	require.Equal(t, string(StageDone), st.Stage)
	require.NotEmpty(t, st.MessageID)

	msg, err := store.Messages.Get(st.MessageID)
	require.NoError(t, err)
	assert.True(t, msg.Processed)
	assert.Contains(t, msg.Tags, "important")

	// The original bytes were retained inside the data directory.
	assert.Contains(t, msg.FilePath, filepath.Join(store.DataDir(), "emails"))
	_, err = os.Stat(msg.FilePath)
	assert.NoError(t, err)

	// Parse then search for a subject substring finds the message.
	results := store.Messages.Search("invoice over")
	require.Len(t, results, 1)
	assert.Equal(t, msg.ID, results[0].ID)

	// Stage events arrived in strict order.
	var stages []Stage
	for _, ev := range snapshot() {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{StageQueued, StageParsing, StageClassifying, StagePersisting, StageDone}, stages)
}

func TestPipeline_NeedsReplyProducesDraft(t *testing.T) {
	backend := &fakeBackend{
		classifyResp: assignTags("needs-reply"),
		draftResp:    "Hi, thanks for reaching out. I will get back to you tomorrow.",
	}
	p, store := newTestPipeline(t, backend)
	snapshot, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "question.eml", "Quick question")
	accepted, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	waitTerminal(t, p, accepted[0].ID)

	st, _ := p.Status(accepted[0].ID)
	require.Equal(t, string(StageDone), st.Stage)

	drafts := store.Replies.ForMessage(st.MessageID)
	require.Len(t, drafts, 1)
	assert.NotEmpty(t, strings.TrimSpace(drafts[0].Body))
	assert.Equal(t, st.MessageID, drafts[0].MessageID)

	var stages []Stage
	for _, ev := range snapshot() {
		stages = append(stages, ev.Stage)
	}
	assert.Contains(t, stages, StageDraftingReply)
}

func TestPipeline_NoDraftWithoutNeedsReplyTag(t *testing.T) {
	backend := &fakeBackend{classifyResp: assignTags("spam")}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "junk.eml", "You won a prize")
	accepted, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	waitTerminal(t, p, accepted[0].ID)

	st, _ := p.Status(accepted[0].ID)
	require.Equal(t, string(StageDone), st.Stage)
	assert.Empty(t, store.Replies.ForMessage(st.MessageID))
}

func TestPipeline_FailureIsIsolatedPerFile(t *testing.T) {
	backend := &fakeBackend{
		classifyResp: assignTags("important"),
		failSubject:  "Broken backend call",
	}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	dir := t.TempDir()
	bad := writeEML(t, dir, "bad.eml", "Broken backend call")
	good := writeEML(t, dir, "good.eml", "Weekly summary")

	accepted, _, err := p.Submit([]string{bad, good})
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	waitTerminal(t, p, accepted[0].ID)
	waitTerminal(t, p, accepted[1].ID)

	badSt, _ := p.Status(accepted[0].ID)
	assert.Equal(t, string(StageFailed), badSt.Stage)
	assert.Contains(t, badSt.Error, "connection-refused")

	goodSt, _ := p.Status(accepted[1].ID)
	assert.Equal(t, string(StageDone), goodSt.Stage)
	_, err = store.Messages.Get(goodSt.MessageID)
	assert.NoError(t, err)
}

func TestPipeline_ReingestSameBytesDedupes(t *testing.T) {
	backend := &fakeBackend{classifyResp: assignTags("important")}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "same.eml", "Same bytes twice")
	first, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	waitTerminal(t, p, first[0].ID)
	second, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	waitTerminal(t, p, second[0].ID)

	assert.Equal(t, 1, store.Messages.Count())

	firstSt, _ := p.Status(first[0].ID)
	secondSt, _ := p.Status(second[0].ID)
	assert.Equal(t, firstSt.MessageID, secondSt.MessageID)

	// Only one retained copy exists for the single record.
	entries, err := os.ReadDir(filepath.Join(store.DataDir(), "emails"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPipeline_CancellationLeavesNoFileNonTerminal(t *testing.T) {
	backend := &fakeBackend{
		classifyResp: assignTags("important"),
		delay:        50 * time.Millisecond,
	}
	p, _ := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeEML(t, dir, fmt.Sprintf("m%d.eml", i), fmt.Sprintf("Message %d", i)))
	}
	accepted, _, err := p.Submit(paths)
	require.NoError(t, err)
	require.Len(t, accepted, 5)

	// Cancel while the first file is mid-flight.
	time.Sleep(10 * time.Millisecond)
	cancel()

	for _, st := range accepted {
		waitTerminal(t, p, st.ID)
	}

	done := 0
	for _, st := range p.Statuses() {
		switch st.Stage {
		case string(StageDone):
			done++
		case string(StageFailed):
			assert.Contains(t, st.Error, "cancel")
		default:
			t.Fatalf("non-terminal stage after cancellation: %s", st.Stage)
		}
	}
	// The in-flight file ran to completion; later files were cut off.
	assert.GreaterOrEqual(t, done, 1)
	assert.Less(t, done, 5)
}

func TestPipeline_CancelDoesNotAbortInFlightBackendCall(t *testing.T) {
	backend := &fakeBackend{
		classifyResp: assignTags("important"),
		delay:        80 * time.Millisecond,
	}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "inflight.eml", "Still processing")
	accepted, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	// Cancel while the classification call is in flight. The backend
	// fake would fail the call if its context were cancelled; the file
	// must still run to completion.
	time.Sleep(20 * time.Millisecond)
	cancel()

	waitTerminal(t, p, accepted[0].ID)
	st, _ := p.Status(accepted[0].ID)
	require.Equal(t, string(StageDone), st.Stage)

	msg, err := store.Messages.Get(st.MessageID)
	require.NoError(t, err)
	assert.True(t, msg.Processed)
	assert.Contains(t, msg.Tags, "important")
}

func TestPipeline_SubmitQueueFullIsDistinctFromRejection(t *testing.T) {
	backend := &fakeBackend{}
	p, _ := newTestPipeline(t, backend)
	// Shrink the queue; the worker is never started so nothing drains.
	p.jobs = make(chan job, 1)

	dir := t.TempDir()
	first := writeEML(t, dir, "first.eml", "First")
	second := writeEML(t, dir, "second.eml", "Second")

	accepted, rejected, err := p.Submit([]string{first, second})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, accepted, 1)
	assert.Empty(t, rejected, "backpressure must not be reported as a rejected path")
}

func TestPipeline_SubmitRejectsUnusablePaths(t *testing.T) {
	backend := &fakeBackend{}
	p, _ := newTestPipeline(t, backend)

	dir := t.TempDir()
	notMail := filepath.Join(dir, "notes.eml")
	require.NoError(t, os.WriteFile(notMail, []byte("just some text, no headers"), 0o644))

	accepted, rejected, err := p.Submit([]string{
		filepath.Join(dir, "missing.eml"),
		dir,
		notMail,
	})
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Len(t, rejected, 3)
}

func TestPipeline_ParseFailureMarksFileFailed(t *testing.T) {
	backend := &fakeBackend{}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// Enough headers to pass the sniff, wrong extension is fine, but the
	// extension check happens in ParseFile.
	dir := t.TempDir()
	path := filepath.Join(dir, "weird.txt")
	raw := "From: a@b.c\r\nSubject: hi\r\n\r\nbody\r\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	accepted, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	waitTerminal(t, p, accepted[0].ID)

	st, _ := p.Status(accepted[0].ID)
	assert.Equal(t, string(StageFailed), st.Stage)
	assert.Contains(t, st.Error, "unsupported-format")
	assert.Equal(t, 0, store.Messages.Count())
	assert.Equal(t, 0, backend.callCount())
}

func TestPipeline_ProcessingLogRecordsOutcomes(t *testing.T) {
	backend := &fakeBackend{classifyResp: assignTags("important")}
	p, store := newTestPipeline(t, backend)
	_, stop := drain(p)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	path := writeEML(t, t.TempDir(), "logged.eml", "Logged message")
	accepted, _, err := p.Submit([]string{path})
	require.NoError(t, err)
	waitTerminal(t, p, accepted[0].ID)

	require.Eventually(t, func() bool {
		return len(store.Logs.Recent(0)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	entry := store.Logs.Recent(1)[0]
	assert.Equal(t, "ingest", entry.Operation)
	assert.Equal(t, string(StageDone), entry.Status)
	assert.Equal(t, path, entry.FilePath)
	assert.NotEmpty(t, entry.MessageID)
}

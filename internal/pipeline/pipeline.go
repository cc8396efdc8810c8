// Package pipeline orchestrates the parse, classify, draft and persist
// workflow. A single worker goroutine processes files strictly in
// submission order, so the inference backend is never hit concurrently,
// and emits a progress event after every stage transition. One file's
// failure never aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/classify"
	"smartmailbox/internal/mailparse"
	"smartmailbox/internal/models"
	"smartmailbox/internal/ollama"
	"smartmailbox/internal/reply"
	"smartmailbox/internal/storage"
)

// Stage names the states a file moves through. Done and failed are
// terminal.
type Stage string

const (
	StageQueued        Stage = "queued"
	StageParsing       Stage = "parsing"
	StageClassifying   Stage = "classifying"
	StageDraftingReply Stage = "drafting_reply"
	StagePersisting    Stage = "persisting"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// Event is one progress notification. Events for a file arrive in strict
// stage order; the channel returned by Events must be drained by the
// caller.
type Event struct {
	JobID     string
	Path      string
	Stage     Stage
	MessageID string
	Err       error
}

// CompleterFactory builds an inference transport for the server named in
// the current settings. Injected so tests can substitute a fake backend.
type CompleterFactory func(serverURL string, timeout time.Duration) ollama.Completer

// job carries one file plus the settings snapshot taken at submission.
type job struct {
	id       string
	path     string
	settings models.Settings
}

// Pipeline is the background processing worker.
type Pipeline struct {
	store   *storage.Store
	factory CompleterFactory
	logger  zerolog.Logger

	jobs   chan job
	events chan Event

	mu     sync.Mutex
	status map[string]models.FileStatus
	order  []string
}

// queueSize bounds pending submissions; Submit fails with ErrQueueFull
// beyond it.
const queueSize = 1024

// ErrQueueFull reports transient backpressure: the submission queue has
// no room. Unlike a rejected path the input is fine; the caller should
// retry once the worker has drained the queue.
var ErrQueueFull = errors.New("pipeline queue is full")

// New creates a Pipeline. eventBufSize sizes the event channel buffer.
func New(store *storage.Store, factory CompleterFactory, eventBufSize int, logger zerolog.Logger) *Pipeline {
	if eventBufSize <= 0 {
		eventBufSize = 64
	}
	return &Pipeline{
		store:   store,
		factory: factory,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		jobs:    make(chan job, queueSize),
		events:  make(chan Event, eventBufSize),
		status:  map[string]models.FileStatus{},
	}
}

// Events returns the progress channel. The caller must drain it.
func (p *Pipeline) Events() <-chan Event { return p.events }

// Start launches the worker. It returns immediately; the worker runs
// until ctx is cancelled. Cancellation takes effect between files: the
// file being processed runs to completion and every still-queued file is
// marked failed.
func (p *Pipeline) Start(ctx context.Context) {
	go p.run(ctx)
}

// Submit queues files for processing, snapshotting the current settings
// so mid-batch settings edits do not affect files already queued. Paths
// that do not exist or do not look like message files are rejected
// immediately. A full queue stops the submission with ErrQueueFull;
// files already accepted stay queued, the remainder is the caller's to
// retry. Accepted files are returned in queue order.
func (p *Pipeline) Submit(paths []string) (accepted []models.FileStatus, rejected []string, err error) {
	settings := p.store.Settings.Get()

	for _, path := range paths {
		if info, statErr := os.Stat(path); statErr != nil || info.IsDir() {
			rejected = append(rejected, path)
			continue
		}
		if !mailparse.LooksLikeMessage(path) {
			rejected = append(rejected, path)
			continue
		}

		j := job{id: uuid.NewString(), path: path, settings: settings}
		select {
		case p.jobs <- j:
		default:
			return accepted, rejected, ErrQueueFull
		}

		p.setStatus(Event{JobID: j.id, Path: j.path, Stage: StageQueued})
		p.emit(Event{JobID: j.id, Path: j.path, Stage: StageQueued})
		accepted = append(accepted, p.mustStatus(j.id))
	}
	return accepted, rejected, nil
}

// Status returns the tracked state of one submission.
func (p *Pipeline) Status(jobID string) (models.FileStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.status[jobID]
	return st, ok
}

// Statuses returns every tracked submission in submission order.
func (p *Pipeline) Statuses() []models.FileStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.FileStatus, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.status[id])
	}
	return out
}

func (p *Pipeline) run(ctx context.Context) {
	for {
		// Cancellation is checked between files only.
		select {
		case <-ctx.Done():
			p.failQueued(ctx.Err())
			return
		default:
		}

		select {
		case <-ctx.Done():
			p.failQueued(ctx.Err())
			return
		case j := <-p.jobs:
			p.process(j)
		}
	}
}

// failQueued drains the queue on cancellation so every submitted file
// still reaches a terminal state.
func (p *Pipeline) failQueued(cause error) {
	for {
		select {
		case j := <-p.jobs:
			p.transition(Event{JobID: j.id, Path: j.path, Stage: StageFailed, Err: fmt.Errorf("cancelled before processing: %w", cause)})
		default:
			return
		}
	}
}

// process runs one file through every stage. Any stage error is terminal
// for the file. The stages run under a context detached from the run
// context: cancelling the pipeline must never abort the in-flight
// backend call, only stop files after this one. The per-call timeout in
// the backend client still bounds each inference call.
func (p *Pipeline) process(j job) {
	started := time.Now()
	logger := p.logger.With().Str("job_id", j.id).Str("file", j.path).Logger()

	msg, draft, err := p.processStages(context.Background(), j)

	entry := models.ProcessingLog{
		FilePath:   j.path,
		Operation:  "ingest",
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		logger.Error().Err(err).Msg("File processing failed")
		entry.Status = string(StageFailed)
		entry.Detail = err.Error()
		p.transition(Event{JobID: j.id, Path: j.path, Stage: StageFailed, Err: err})
	} else {
		logger.Info().
			Str("message_id", msg.ID).
			Strs("tags", msg.Tags).
			Bool("draft", draft != nil).
			Dur("took", time.Since(started)).
			Msg("File processed")
		entry.Status = string(StageDone)
		entry.MessageID = msg.ID
		p.transition(Event{JobID: j.id, Path: j.path, Stage: StageDone, MessageID: msg.ID})
	}

	if logErr := p.store.Logs.Append(entry); logErr != nil {
		logger.Warn().Err(logErr).Msg("Failed to append processing log")
	}
}

func (p *Pipeline) processStages(ctx context.Context, j job) (models.Message, *models.ReplyDraft, error) {
	// Parse.
	p.transition(Event{JobID: j.id, Path: j.path, Stage: StageParsing})
	msg, err := mailparse.ParseFile(j.path)
	if err != nil {
		return models.Message{}, nil, err
	}

	timeout := time.Duration(j.settings.TimeoutSeconds) * time.Second
	backend := p.factory(j.settings.ServerURL, timeout)
	opts := ollama.Options{
		Model:       j.settings.Model,
		Temperature: j.settings.Temperature,
		MaxTokens:   j.settings.MaxTokens,
	}

	// Classify against the currently active tags.
	p.transition(Event{JobID: j.id, Path: j.path, Stage: StageClassifying})
	activeTags := p.store.Tags.Active()
	verdicts, err := classify.New(backend, p.logger).Classify(ctx, msg, activeTags, opts)
	if err != nil {
		return models.Message{}, nil, err
	}
	for _, v := range verdicts {
		if v.Assigned {
			msg.AddTag(v.TagID)
		}
	}
	msg.Processed = true

	// Draft a reply only when the needs-reply tag was assigned.
	var draft *models.ReplyDraft
	if j.settings.NeedsReplyTag != "" && msg.HasTag(j.settings.NeedsReplyTag) {
		p.transition(Event{JobID: j.id, Path: j.path, Stage: StageDraftingReply})
		draft, err = reply.New(backend, p.logger).Draft(ctx, msg, j.settings.ReplyTone, opts)
		if err != nil {
			return models.Message{}, nil, err
		}
	}

	// Persist: retain the original bytes (unless this hash is already
	// stored), then write the record and any draft.
	p.transition(Event{JobID: j.id, Path: j.path, Stage: StagePersisting})
	if existing, ok := p.store.Messages.FindByHash(msg.FileHash); ok {
		msg.FilePath = existing.FilePath
	} else {
		raw, readErr := os.ReadFile(j.path)
		if readErr != nil {
			return models.Message{}, nil, &mailparse.ParseError{Kind: mailparse.KindUnreadableFile, Path: j.path, Err: readErr}
		}
		retained, retainErr := p.store.Messages.Retain(j.path, raw)
		if retainErr != nil {
			return models.Message{}, nil, retainErr
		}
		msg.FilePath = retained
	}

	stored, err := p.store.Messages.Upsert(*msg)
	if err != nil {
		return models.Message{}, nil, err
	}
	if draft != nil {
		draft.MessageID = stored.ID
		saved, err := p.store.Replies.Upsert(*draft)
		if err != nil {
			return models.Message{}, nil, err
		}
		draft = &saved
	}
	return stored, draft, nil
}

// transition records the new stage and emits the matching event.
func (p *Pipeline) transition(ev Event) {
	p.setStatus(ev)
	p.emit(ev)
}

func (p *Pipeline) setStatus(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.status[ev.JobID]
	if !ok {
		st = models.FileStatus{ID: ev.JobID, Path: ev.Path}
		p.order = append(p.order, ev.JobID)
	}
	st.Stage = string(ev.Stage)
	if ev.MessageID != "" {
		st.MessageID = ev.MessageID
	}
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	p.status[ev.JobID] = st
}

func (p *Pipeline) mustStatus(jobID string) models.FileStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[jobID]
}

// emit delivers the event. The send blocks when the buffer is full so
// stage ordering is never lost; the caller owns keeping the channel
// drained.
func (p *Pipeline) emit(ev Event) {
	p.events <- ev
}

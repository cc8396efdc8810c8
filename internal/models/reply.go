package models

import "time"

// ReplyDraft is a generated reply stored separately from its message, so a
// message can exist without a draft and a draft can be regenerated without
// touching message history.
type ReplyDraft struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	Body        string    `json:"body"`
	GeneratedAt time.Time `json:"generated_at"`
	Edited      bool      `json:"edited"`
}

// ProcessingLog records one pipeline operation against one file.
type ProcessingLog struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id,omitempty"`
	FilePath   string    `json:"file_path"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Settings is the runtime-mutable configuration persisted by the storage
// engine and snapshotted into each pipeline run.
type Settings struct {
	ServerURL      string  `json:"server_url"`
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	ReplyTone      string  `json:"reply_tone"`
	NeedsReplyTag  string  `json:"needs_reply_tag"`
}

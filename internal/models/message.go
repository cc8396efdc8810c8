package models

import "time"

// UnknownAddress is stored when a message carries no usable sender or
// recipient header. It keeps downstream code free of empty-string checks.
const UnknownAddress = "unknown"

// Attachment describes one attachment without carrying its bytes.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message represents a parsed email message and its processing state.
// The storage engine owns the durable copy; the pipeline mutates Processed
// and Tags and writes the record back through the engine.
type Message struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	Sender        string `json:"sender"`
	SenderName    string `json:"sender_name,omitempty"`
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name,omitempty"`

	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`

	DateSent     time.Time `json:"date_sent"`
	DateReceived time.Time `json:"date_received"`

	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	FileHash string `json:"file_hash"`

	HasAttachments  bool         `json:"has_attachments"`
	AttachmentCount int          `json:"attachment_count"`
	Attachments     []Attachment `json:"attachments,omitempty"`

	// Processed means a classification attempt was made; it does not imply
	// every tag prompt succeeded. Tags preserves assignment order without
	// duplicates.
	Processed bool     `json:"processed"`
	Tags      []string `json:"tags"`
}

// HasTag reports whether the message carries the given tag id.
func (m *Message) HasTag(tagID string) bool {
	for _, t := range m.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}

// AddTag appends a tag id, preserving assignment order and skipping
// duplicates.
func (m *Message) AddTag(tagID string) {
	if !m.HasTag(tagID) {
		m.Tags = append(m.Tags, tagID)
	}
}

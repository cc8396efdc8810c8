package models

import "time"

// Tag is a classification label. System tags ship with the application;
// user tags are created through the API. A tag with an empty Prompt is
// manual-only and never sent to the inference backend.
type Tag struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	Prompt      string    `json:"prompt,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Prompted reports whether the tag participates in classification.
func (t *Tag) Prompted() bool {
	return t.IsActive && t.Prompt != ""
}

// Verdict is the backend's judgement for one tag against one message.
type Verdict struct {
	TagID    string `json:"tag_id"`
	Assigned bool   `json:"assigned"`
	Reason   string `json:"reason,omitempty"`
}

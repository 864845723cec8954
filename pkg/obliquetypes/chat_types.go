// Package obliquetypes defines the shared data contracts for Oblique.
// This file contains the chat history types consumed by the prompt formatter
// and the trigger abstraction used to start a generation.
package obliquetypes

import "time"

// ChatEntry is one historical message in a channel.
// Entries are always formatted oldest-to-newest regardless of fetch order.
type ChatEntry struct {
	AuthorID   string            `json:"author_id,omitempty"`
	AuthorName string            `json:"author"`
	Text       string            `json:"text"`
	Timestamp  time.Time         `json:"timestamp"`
	Mentions   map[string]string `json:"mentions,omitempty"` // platform user id -> display name
}

// Trigger is the event that started a generation. Both variants expose the
// same author accessors so callers never branch on the concrete type.
type Trigger interface {
	AuthorID() string
	AuthorDisplayName() string
}

// MessageTrigger is a keyword message posted in a channel.
type MessageTrigger struct {
	ID         string
	Author     string
	AuthorName string
	ChannelID  string
	Content    string
	SentAt     time.Time
}

// AuthorID returns the id of the message author.
func (m MessageTrigger) AuthorID() string { return m.Author }

// AuthorDisplayName returns the display name of the message author.
func (m MessageTrigger) AuthorDisplayName() string { return m.AuthorName }

// InteractionTrigger is a slash command or button press.
type InteractionTrigger struct {
	UserID    string
	UserName  string
	ChannelID string
	CustomID  string
}

// AuthorID returns the id of the interacting user.
func (i InteractionTrigger) AuthorID() string { return i.UserID }

// AuthorDisplayName returns the display name of the interacting user.
func (i InteractionTrigger) AuthorDisplayName() string { return i.UserName }

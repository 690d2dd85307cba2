// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation errors for Item.
var (
	ErrEmptyText   = errors.New("text cannot be empty")
	ErrTextTooLong = errors.New("text cannot exceed 500 characters")
)

// MaxTextLength is the longest item text accepted, counted in runes.
const MaxTextLength = 500

// Item is a single task entry.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// ItemInput is the request body for creating or updating an item.
type ItemInput struct {
	Text string `json:"text"`
}

// NormalizeText trims surrounding whitespace and checks what is left.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}

	if utf8.RuneCountInString(trimmed) > MaxTextLength {
		return "", ErrTextTooLong
	}

	return trimmed, nil
}

// Validate checks if the Item has valid field values.
func (i *Item) Validate() error {
	_, err := NormalizeText(i.Text)
	return err
}

// Validate checks the input text. It does not modify the input.
func (in *ItemInput) Validate() error {
	_, err := NormalizeText(in.Text)
	return err
}

// CloneItems returns a copy of items that shares no backing array.
func CloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// ContainsID reports whether items has an entry with the given id.
func ContainsID(items []Item, id string) bool {
	for i := range items {
		if items[i].ID == id {
			return true
		}
	}
	return false
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// FeedMessage is a message sent over the item feed WebSocket connection.
type FeedMessage struct {
	Type      string    `json:"type"`
	Items     []Item    `json:"items"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed message types.
const (
	FeedMessageTypeSnapshot = "snapshot"
	FeedMessageTypeError    = "error"
)

// NewSnapshotMessage creates a feed message carrying the full collection.
func NewSnapshotMessage(items []Item) FeedMessage {
	if items == nil {
		items = []Item{}
	}
	return FeedMessage{
		Type:      FeedMessageTypeSnapshot,
		Items:     items,
		Timestamp: time.Now().UTC(),
	}
}

// NewFeedErrorMessage creates a feed message reporting a server-side failure.
func NewFeedErrorMessage(errMsg string) FeedMessage {
	return FeedMessage{
		Type:      FeedMessageTypeError,
		Items:     []Item{},
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

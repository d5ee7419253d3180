package dto

import (
	"github.com/liveboard-app/liveboard-api/internal/models"
)

// PostMessageRequest represents the payload clients submit to post a message.
// The handler is the size-enforcement boundary; the core never re-checks.
type PostMessageRequest struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=64"`
	ClientID string `json:"client_id" validate:"required,min=1,max=128"`
	Content  string `json:"content" validate:"required,min=1,max=2000"`
}

// MessageResponse is the serialized representation of a posted message.
type MessageResponse struct {
	ID        uint   `json:"id"`
	Nickname  string `json:"nickname"`
	Tag       int    `json:"tag"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// NewMessageResponse converts a model into a DTO. A tag outside the valid
// range is rendered as 1 rather than leaking the unresolved sentinel.
func NewMessageResponse(message models.Message) MessageResponse {
	tag := message.UserTag
	if !models.ValidTag(tag) {
		tag = models.TagMin
	}

	return MessageResponse{
		ID:        message.ID,
		Nickname:  message.Nickname,
		Tag:       tag,
		Timestamp: message.Timestamp,
		Content:   message.Content,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// StreamEvent is the payload pushed to live readers when the board changes.
// Clients re-fetch the recent window on receipt; the version only signals
// that something new exists.
type StreamEvent struct {
	Version uint64 `json:"version"`
}

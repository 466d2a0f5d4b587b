package dto

import (
	"time"

	"github.com/kantanworks/orderdesk/internal/entity"
)

// ChatMessageResponse represents a chat entry for polling clients. Timestamp
// is the derived unix form of CreatedAt so clients compare numerically.
type ChatMessageResponse struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"order_id"`
	UserID          int64     `json:"user_id"`
	UserDisplayName string    `json:"user_display_name"`
	Message         string    `json:"message"`
	IsInitial       bool      `json:"is_initial"`
	CreatedAt       time.Time `json:"created_at"`
	Timestamp       int64     `json:"timestamp"`
}

// FromChatMessage maps the entity onto its transport shape.
func FromChatMessage(m *entity.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:              m.ID,
		OrderID:         m.OrderID,
		UserID:          m.UserID,
		UserDisplayName: m.UserDisplayName,
		Message:         m.Message,
		IsInitial:       m.IsInitial,
		CreatedAt:       m.CreatedAt,
		Timestamp:       m.CreatedAt.Unix(),
	}
}

// FromChatMessages maps a thread slice.
func FromChatMessages(messages []entity.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, FromChatMessage(&messages[i]))
	}
	return out
}

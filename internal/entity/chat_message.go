package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// InitialChatText is the fixed system text of the protected first message.
const InitialChatText = "Order created."

// ChatMessage is one entry in an order's staff discussion thread.
//
// UserDisplayName is a snapshot taken at write time so historical messages
// keep showing the author's name as of posting. At most one message per order
// carries IsInitial; that row can never be edited or deleted.
type ChatMessage struct {
	bun.BaseModel `bun:"table:order_staff_chat"`

	ID              int64     `bun:",pk,autoincrement" json:"id"`
	OrderID         int64     `bun:"order_id" json:"order_id"`
	UserID          int64     `bun:"user_id" json:"user_id"`
	UserDisplayName string    `bun:"user_display_name" json:"user_display_name"`
	Message         string    `bun:"message" json:"message"`
	IsInitial       bool      `bun:"is_initial" json:"is_initial"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}

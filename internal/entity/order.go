package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order represents a unit of business work tracked through the sales pipeline.
//
// Progress is the authoritative pipeline state; Status is the denormalized
// label and SearchField the denormalized search text. Both are recomputed by
// the repository write path, never trusted from callers.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          int64  `bun:",pk,autoincrement" json:"id"`
	OrderNumber string `bun:"order_number" json:"order_number"`
	ClientID    int64  `bun:"client_id,nullzero" json:"client_id,omitempty"`

	CustomerName string `bun:"customer_name" json:"customer_name"`
	UserName     string `bun:"user_name" json:"user_name"`
	ProjectName  string `bun:"project_name" json:"project_name"`
	Memo         string `bun:"memo" json:"memo"`
	SearchField  string `bun:"search_field" json:"search_field"`

	OrderDate            time.Time `bun:"order_date" json:"order_date"`
	DesiredDeliveryDate  time.Time `bun:"desired_delivery_date,nullzero" json:"desired_delivery_date,omitempty"`
	ExpectedDeliveryDate time.Time `bun:"expected_delivery_date,nullzero" json:"expected_delivery_date,omitempty"`
	CompletionDate       time.Time `bun:"completion_date,nullzero" json:"completion_date,omitempty"`

	TotalAmount float64 `bun:"total_amount" json:"total_amount"`

	Progress Progress `bun:"progress" json:"progress"`
	Status   string   `bun:"status" json:"status"`

	// Time is the creation epoch used as the default listing sort key. It is
	// distinct from CreatedAt, which audits when the row was written.
	Time int64 `bun:"time" json:"time"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

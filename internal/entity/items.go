package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// InvoiceItem is a billable line scoped to an order. Rows are removed as part
// of the order's cascading delete.
type InvoiceItem struct {
	bun.BaseModel `bun:"table:order_invoice_items"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	OrderID   int64     `bun:"order_id" json:"order_id"`
	ItemName  string    `bun:"item_name" json:"item_name"`
	Quantity  float64   `bun:"quantity" json:"quantity"`
	UnitPrice float64   `bun:"unit_price" json:"unit_price"`
	Amount    float64   `bun:"amount" json:"amount"`
	SortOrder int       `bun:"sort_order" json:"sort_order"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// CostItem is an internal cost line scoped to an order, removed with it.
type CostItem struct {
	bun.BaseModel `bun:"table:order_cost_items"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	OrderID   int64     `bun:"order_id" json:"order_id"`
	ItemName  string    `bun:"item_name" json:"item_name"`
	Quantity  float64   `bun:"quantity" json:"quantity"`
	UnitPrice float64   `bun:"unit_price" json:"unit_price"`
	Amount    float64   `bun:"amount" json:"amount"`
	SortOrder int       `bun:"sort_order" json:"sort_order"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

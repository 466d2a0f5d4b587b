package dto

import (
	"time"

	"github.com/kantanworks/orderdesk/internal/entity"
)

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID                   int64      `json:"id"`
	OrderNumber          string     `json:"order_number"`
	ClientID             int64      `json:"client_id,omitempty"`
	CustomerName         string     `json:"customer_name"`
	UserName             string     `json:"user_name"`
	ProjectName          string     `json:"project_name"`
	Memo                 string     `json:"memo"`
	OrderDate            time.Time  `json:"order_date"`
	DesiredDeliveryDate  *time.Time `json:"desired_delivery_date,omitempty"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	CompletionDate       *time.Time `json:"completion_date,omitempty"`
	TotalAmount          float64    `json:"total_amount"`
	Progress             int        `json:"progress"`
	Status               string     `json:"status"`
	Time                 int64      `json:"time"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// FromOrder maps the entity onto its transport shape.
func FromOrder(o *entity.Order) OrderResponse {
	return OrderResponse{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		ClientID:             o.ClientID,
		CustomerName:         o.CustomerName,
		UserName:             o.UserName,
		ProjectName:          o.ProjectName,
		Memo:                 o.Memo,
		OrderDate:            o.OrderDate,
		DesiredDeliveryDate:  optionalTime(o.DesiredDeliveryDate),
		ExpectedDeliveryDate: optionalTime(o.ExpectedDeliveryDate),
		CompletionDate:       optionalTime(o.CompletionDate),
		TotalAmount:          o.TotalAmount,
		Progress:             int(o.Progress),
		Status:               o.Status,
		Time:                 o.Time,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

// FromOrders maps a listing page.
func FromOrders(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, FromOrder(&orders[i]))
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

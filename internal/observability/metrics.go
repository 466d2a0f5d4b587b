package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the domain counters the event workers maintain. Instruments
// are created against the global meter provider, so they are live no matter
// which exporter the manager configured.
type Metrics struct {
	OrdersCreated      metric.Int64Counter
	OrdersDeleted      metric.Int64Counter
	ChatMessagesPosted metric.Int64Counter
}

// NewMetrics registers the domain counters.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/kantanworks/orderdesk")

	created, err := meter.Int64Counter("orderdesk.orders.created",
		metric.WithDescription("Orders created"))
	if err != nil {
		return nil, err
	}
	deleted, err := meter.Int64Counter("orderdesk.orders.deleted",
		metric.WithDescription("Orders deleted"))
	if err != nil {
		return nil, err
	}
	posted, err := meter.Int64Counter("orderdesk.chat.messages_posted",
		metric.WithDescription("Chat messages posted"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		OrdersCreated:      created,
		OrdersDeleted:      deleted,
		ChatMessagesPosted: posted,
	}, nil
}

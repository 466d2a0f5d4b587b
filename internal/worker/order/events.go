// Package order consumes the order and chat lifecycle events from the bus
// and maintains the domain counters.
package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kantanworks/orderdesk/internal/config"
	"github.com/kantanworks/orderdesk/internal/messaging"
	"github.com/kantanworks/orderdesk/internal/observability"
	chatsvc "github.com/kantanworks/orderdesk/internal/service/chat"
	ordersvc "github.com/kantanworks/orderdesk/internal/service/order"
	"github.com/kantanworks/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/kantanworks/orderdesk/worker/order")

// Module registers the order/chat event handler.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// envelope is the common prefix of every event on the bus; the type field
// selects how the rest of the payload is read.
type envelope struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	OrderID int64  `json:"order_id"`
}

// NewEventHandler sets up a worker handler that processes order lifecycle
// and chat events from the shared topic, logging each and bumping the
// matching counter.
func NewEventHandler(logger *zap.Logger, cfg config.Config, metrics *observability.Metrics) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orderdesk.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event envelope
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("event.type", event.Type))

		switch event.Type {
		case ordersvc.EventOrderCreated:
			metrics.OrdersCreated.Add(ctx, 1)
			logger.Info("order created", zap.Int64("id", event.ID))
		case ordersvc.EventOrderDeleted:
			metrics.OrdersDeleted.Add(ctx, 1)
			logger.Info("order deleted", zap.Int64("id", event.ID))
		case chatsvc.EventMessagePosted:
			metrics.ChatMessagesPosted.Add(ctx, 1)
			logger.Info("chat message posted", zap.Int64("id", event.ID), zap.Int64("order_id", event.OrderID))
		default:
			logger.Warn("unknown event type", zap.String("type", event.Type))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

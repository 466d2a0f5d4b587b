package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kantanworks/orderdesk/internal/auth"
	"github.com/kantanworks/orderdesk/internal/cache"
	"github.com/kantanworks/orderdesk/internal/config"
	"github.com/kantanworks/orderdesk/internal/database"
	"github.com/kantanworks/orderdesk/internal/entity"
	"github.com/kantanworks/orderdesk/internal/messaging"
	chatrepo "github.com/kantanworks/orderdesk/internal/repository/chat"
	repo "github.com/kantanworks/orderdesk/internal/repository/order"
	"github.com/kantanworks/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/kantanworks/orderdesk/service/order")

// Event types published to the bus.
const (
	EventOrderCreated = "order.created"
	EventOrderDeleted = "order.deleted"
)

// Service encapsulates business logic around orders: validation, error
// taxonomy mapping, cache maintenance and event publication.
type Service struct {
	repo      *repo.Repository
	chat      *chatrepo.Repository
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// ListResult bundles one page of orders with the filtered total.
type ListResult struct {
	Orders []entity.Order
	Total  int
}

// DeleteResult reports the outcome of a delete plus where a UI should
// navigate next. NextID is 0 when no orders remain.
type DeleteResult struct {
	DeletedID int64
	NextID    int64
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Chat       *chatrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:      p.Repository,
		chat:      p.Chat,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// Create persists a new order, eagerly seeds its initial chat message with
// the creator's identity, and publishes an order.created event. A failed
// chat seed is logged but does not undo the created order; the lazy path in
// the chat service repairs it on first read.
func (s *Service) Create(ctx context.Context, o *entity.Order, actor auth.Identity) (*entity.Order, error) {
	if o == nil {
		return nil, errorbank.BadRequest("order payload is required")
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create")
	defer span.End()

	id, err := s.repo.Create(ctx, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "repository error")
		if database.IsUniqueViolation(err) {
			return nil, errorbank.Conflict("order number already taken", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.Int64("order.id", id))

	if actor.Known() {
		if err := s.chat.EnsureInitialMessage(ctx, id, actor.UserID, actor.DisplayName); err != nil {
			s.logger.Warn("initial chat seed failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}

	if err := s.storeInCache(ctx, o); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	s.publish(ctx, EventOrderCreated, orderEvent{
		Type:        EventOrderCreated,
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Progress:    int(o.Progress),
		Status:      o.Status,
		OccurredAt:  time.Now().UTC(),
	})
	return o, nil
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if o, err := s.getFromCache(ctx, id); err == nil {
		return o, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to load order")
	}

	if err := s.storeInCache(ctx, o); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return o, nil
}

// List returns one page of orders plus the filtered total for pagination.
func (s *Service) List(ctx context.Context, f repo.Filter) (*ListResult, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to list orders")
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to count orders")
	}
	return &ListResult{Orders: orders, Total: total}, nil
}

// Update applies a partial update and invalidates the cached copy.
func (s *Service) Update(ctx context.Context, id int64, fields map[string]any) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return s.mapRepoError(span, err, "failed to update order")
	}
	s.invalidate(ctx, id)
	return nil
}

// UpdateProgress moves the order to the given pipeline stage. Unknown codes
// fail before any store access and leave progress unchanged.
func (s *Service) UpdateProgress(ctx context.Context, id int64, progress entity.Progress) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateProgress",
		trace.WithAttributes(attribute.Int64("order.id", id), attribute.Int("order.progress", int(progress))))
	defer span.End()

	if err := s.repo.UpdateProgress(ctx, id, progress); err != nil {
		return s.mapRepoError(span, err, "failed to update progress")
	}
	s.invalidate(ctx, id)
	return nil
}

// UpdateProjectName renames the order's project.
func (s *Service) UpdateProjectName(ctx context.Context, id int64, name string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateProjectName", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.repo.UpdateProjectName(ctx, id, name); err != nil {
		return s.mapRepoError(span, err, "failed to update project name")
	}
	s.invalidate(ctx, id)
	return nil
}

// Delete removes the order and all dependent rows, then resolves where a UI
// should navigate next. Publishes order.deleted.
func (s *Service) Delete(ctx context.Context, id int64) (*DeleteResult, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, s.mapRepoError(span, err, "failed to delete order")
	}
	s.invalidate(ctx, id)

	nextID, err := s.repo.NextIDAfterDelete(ctx, id)
	if err != nil {
		s.logger.Warn("next order id lookup failed", zap.Int64("deleted_id", id), zap.Error(err))
		nextID = 0
	}

	s.publish(ctx, EventOrderDeleted, orderEvent{
		Type:       EventOrderDeleted,
		ID:         id,
		OccurredAt: time.Now().UTC(),
	})
	return &DeleteResult{DeletedID: id, NextID: nextID}, nil
}

// ProgressCounts reports how many orders sit at each pipeline stage.
func (s *Service) ProgressCounts(ctx context.Context) (map[entity.Progress]int, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ProgressCounts")
	defer span.End()

	counts, err := s.repo.ProgressCounts(ctx)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to count progress")
	}
	return counts, nil
}

// mapRepoError translates repository sentinels into the application error
// taxonomy; everything else surfaces as an internal persistence failure with
// the store diagnostic attached for logging.
func (s *Service) mapRepoError(span trace.Span, err error, message string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found")
	case errors.Is(err, repo.ErrInvalidID):
		return errorbank.BadRequest("order id must be positive")
	case errors.Is(err, repo.ErrEmptyUpdate):
		return errorbank.BadRequest("update payload is empty")
	case errors.Is(err, repo.ErrUnknownProgress):
		return errorbank.InvalidState("unknown progress code")
	default:
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "repository error")
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

func (s *Service) publish(ctx context.Context, key string, event orderEvent) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("%s-%d", key, event.ID)), payload); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache invalidate failed", zap.Int64("id", id), zap.Error(err))
	}
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var o entity.Order
	if err := json.Unmarshal(bytes, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) storeInCache(ctx context.Context, o *entity.Order) error {
	if s.cache == nil || o == nil {
		return nil
	}
	bytes, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(o.ID), bytes, s.cacheTTL)
}

// orderEvent is the envelope for order lifecycle events on the bus.
type orderEvent struct {
	Type        string    `json:"type"`
	ID          int64     `json:"id"`
	OrderNumber string    `json:"order_number,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

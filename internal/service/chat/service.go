package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kantanworks/orderdesk/internal/auth"
	"github.com/kantanworks/orderdesk/internal/config"
	"github.com/kantanworks/orderdesk/internal/entity"
	"github.com/kantanworks/orderdesk/internal/messaging"
	repo "github.com/kantanworks/orderdesk/internal/repository/chat"
	"github.com/kantanworks/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/kantanworks/orderdesk/service/chat")

// EventMessagePosted is published after a chat message commits.
const EventMessagePosted = "chat.message.posted"

// Service exposes the staff chat operations with caller authorization
// injected rather than owned.
type Service struct {
	repo      *repo.Repository
	authz     auth.Authorizer
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Authorizer auth.Authorizer
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new chat Service.
func NewService(p Params) *Service {
	return &Service{
		repo:      p.Repository,
		authz:     p.Authorizer,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// EnsureInitialMessage seeds the protected first message for an order.
// Idempotent; a concurrent duplicate insert is treated as success.
func (s *Service) EnsureInitialMessage(ctx context.Context, orderID int64, actor auth.Identity) error {
	ctx, span := serviceTracer.Start(ctx, "ChatService.EnsureInitialMessage", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if !actor.Known() {
		return errorbank.BadRequest("author identity is required")
	}
	if err := s.repo.EnsureInitialMessage(ctx, orderID, actor.UserID, actor.DisplayName); err != nil {
		return s.mapRepoError(span, err, "failed to seed initial message")
	}
	return nil
}

// Messages returns the order's thread in conversation order. When the thread
// is empty and the caller may post, the initial message is seeded lazily
// first, so every order a staff member opens has its creation marker.
func (s *Service) Messages(ctx context.Context, orderID int64, actor auth.Identity) ([]entity.ChatMessage, error) {
	ctx, span := serviceTracer.Start(ctx, "ChatService.Messages", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	messages, err := s.repo.Messages(ctx, orderID)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to load messages")
	}
	if len(messages) == 0 && actor.Known() && s.authz.CanPost(actor) {
		if err := s.repo.EnsureInitialMessage(ctx, orderID, actor.UserID, actor.DisplayName); err != nil {
			s.logger.Warn("lazy initial chat seed failed", zap.Int64("order_id", orderID), zap.Error(err))
			return messages, nil
		}
		messages, err = s.repo.Messages(ctx, orderID)
		if err != nil {
			return nil, s.mapRepoError(span, err, "failed to load messages")
		}
	}
	return messages, nil
}

// AddMessage appends a message authored by actor. Validation runs before any
// store access; the insert itself verifies the order still exists inside one
// transaction.
func (s *Service) AddMessage(ctx context.Context, orderID int64, actor auth.Identity, text string) (*entity.ChatMessage, error) {
	ctx, span := serviceTracer.Start(ctx, "ChatService.AddMessage", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if orderID <= 0 {
		return nil, errorbank.BadRequest("order id must be positive")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errorbank.BadRequest("message text is required")
	}
	if !actor.Known() {
		return nil, errorbank.BadRequest("author identity is required")
	}
	if !s.authz.CanPost(actor) {
		return nil, errorbank.Forbidden("not allowed to post messages")
	}

	msg := &entity.ChatMessage{
		OrderID:         orderID,
		UserID:          actor.UserID,
		UserDisplayName: actor.DisplayName,
		Message:         text,
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		return nil, s.mapRepoError(span, err, "failed to add message")
	}

	s.publishPosted(ctx, msg)
	return msg, nil
}

// DeleteMessageByAuthor removes a message on behalf of its author or an
// admin, replacing it with an audit tombstone so the thread still records
// that a deletion happened. Initial messages are permanently protected.
func (s *Service) DeleteMessageByAuthor(ctx context.Context, messageID int64, requester auth.Identity) error {
	ctx, span := serviceTracer.Start(ctx, "ChatService.DeleteMessageByAuthor", trace.WithAttributes(attribute.Int64("chat.message_id", messageID)))
	defer span.End()

	if !requester.Known() {
		return errorbank.BadRequest("requester identity is required")
	}

	msg, err := s.repo.Find(ctx, messageID)
	if err != nil {
		return s.mapRepoError(span, err, "failed to load message")
	}
	if msg.IsInitial {
		return errorbank.Forbidden("initial message cannot be deleted")
	}
	if msg.UserID != requester.UserID && !s.authz.CanDeleteAny(requester) {
		return errorbank.Forbidden("not allowed to delete this message")
	}

	tombstone := &entity.ChatMessage{
		OrderID:         msg.OrderID,
		UserID:          requester.UserID,
		UserDisplayName: requester.DisplayName,
		Message:         fmt.Sprintf("%s deleted a message", requester.DisplayName),
	}
	if err := s.repo.ReplaceWithTombstone(ctx, messageID, tombstone); err != nil {
		return s.mapRepoError(span, err, "failed to delete message")
	}
	return nil
}

// MessagesAfter is the polling sync primitive: messages strictly newer than
// since, or the whole thread when since is zero.
func (s *Service) MessagesAfter(ctx context.Context, orderID int64, since time.Time) ([]entity.ChatMessage, error) {
	ctx, span := serviceTracer.Start(ctx, "ChatService.MessagesAfter", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	messages, err := s.repo.MessagesAfter(ctx, orderID, since)
	if err != nil {
		return nil, s.mapRepoError(span, err, "failed to load messages")
	}
	return messages, nil
}

func (s *Service) mapRepoError(span trace.Span, err error, message string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("chat message not found")
	case errors.Is(err, repo.ErrOrderNotFound):
		return errorbank.NotFound("order not found")
	case errors.Is(err, repo.ErrInvalidID):
		return errorbank.BadRequest("id must be positive")
	default:
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "repository error")
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

func (s *Service) publishPosted(ctx context.Context, msg *entity.ChatMessage) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := messageEvent{
		Type:       EventMessagePosted,
		ID:         msg.ID,
		OrderID:    msg.OrderID,
		UserID:     msg.UserID,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal chat event", zap.Error(err))
		return
	}
	key := []byte(fmt.Sprintf("chat-%d", msg.OrderID))
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		s.logger.Error("publish chat event", zap.Error(err))
	}
}

// messageEvent is the envelope for chat events on the bus. Message bodies are
// deliberately omitted; consumers work from ids.
type messageEvent struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	OrderID    int64     `json:"order_id"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

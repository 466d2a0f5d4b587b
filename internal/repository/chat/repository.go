package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kantanworks/orderdesk/internal/database"
	"github.com/kantanworks/orderdesk/internal/entity"
	"github.com/kantanworks/orderdesk/internal/sanitize"
)

var repoTracer = otel.Tracer("github.com/kantanworks/orderdesk/repository/chat")

// ErrNotFound is returned when a chat message is missing.
var ErrNotFound = errors.New("chat message not found")

// ErrOrderNotFound is returned when the owning order is missing.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidID is returned for non-positive ids.
var ErrInvalidID = errors.New("invalid id")

// Repository owns per-order chat history and its consistency invariants.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a chat repository over the configured connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// EnsureInitialMessage seeds the protected first message when none exists.
// The existence check and insert are not atomic against concurrent callers;
// the partial unique index on (order_id) WHERE is_initial is the true guard,
// and an insert conflict means another caller already seeded it.
func (r *Repository) EnsureInitialMessage(ctx context.Context, orderID, userID int64, displayName string) error {
	if orderID <= 0 || userID <= 0 {
		return ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.EnsureInitialMessage", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	exists, err := r.reader.NewSelect().Model((*entity.ChatMessage)(nil)).
		Where("order_id = ?", orderID).
		Where("is_initial = ?", true).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if exists {
		return nil
	}

	msg := &entity.ChatMessage{
		OrderID:         orderID,
		UserID:          userID,
		UserDisplayName: sanitize.Line(displayName),
		Message:         entity.InitialChatText,
		IsInitial:       true,
		CreatedAt:       time.Now(),
	}
	_, err = r.writer.NewInsert().Model(msg).Exec(ctx)
	if database.IsUniqueViolation(err) {
		// A concurrent caller won the race; the invariant holds.
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// Messages returns the order's full thread in conversation order: created_at
// ascending, ids breaking ties.
func (r *Repository) Messages(ctx context.Context, orderID int64) ([]entity.ChatMessage, error) {
	if orderID <= 0 {
		return nil, ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.Messages", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var messages []entity.ChatMessage
	err := r.reader.NewSelect().Model(&messages).
		Where("order_id = ?", orderID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return messages, nil
}

// MessagesAfter returns messages with created_at strictly after since, in
// conversation order, or the whole thread when since is zero. This is the
// polling sync primitive; there is no push channel.
func (r *Repository) MessagesAfter(ctx context.Context, orderID int64, since time.Time) ([]entity.ChatMessage, error) {
	if orderID <= 0 {
		return nil, ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.MessagesAfter", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var messages []entity.ChatMessage
	q := r.reader.NewSelect().Model(&messages).Where("order_id = ?", orderID)
	if !since.IsZero() {
		q = q.Where("created_at > ?", since)
	}
	err := q.OrderExpr("created_at ASC, id ASC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return messages, nil
}

// Find loads a single message by id.
func (r *Repository) Find(ctx context.Context, messageID int64) (*entity.ChatMessage, error) {
	if messageID <= 0 {
		return nil, ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.Find", trace.WithAttributes(attribute.Int64("chat.message_id", messageID)))
	defer span.End()

	msg := new(entity.ChatMessage)
	err := r.reader.NewSelect().Model(msg).Where("id = ?", messageID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return msg, nil
}

// Append inserts an ordinary message inside one transaction that first
// verifies the owning order still exists. On any failure the transaction
// rolls back and no partial state is visible.
func (r *Repository) Append(ctx context.Context, msg *entity.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.OrderID <= 0 {
		return ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.Append", trace.WithAttributes(attribute.Int64("order.id", msg.OrderID)))
	defer span.End()

	msg.IsInitial = false
	msg.UserDisplayName = sanitize.Line(msg.UserDisplayName)
	msg.Message = sanitize.Text(msg.Message)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*entity.Order)(nil)).Where("id = ?", msg.OrderID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("verify order: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		_, err = tx.NewInsert().Model(msg).Exec(ctx)
		return err
	})
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
	}
	return err
}

// ReplaceWithTombstone deletes a message and inserts its audit tombstone in
// one transaction; both commit together or both roll back, so the thread
// never shows a delete without its audit entry.
func (r *Repository) ReplaceWithTombstone(ctx context.Context, messageID int64, tombstone *entity.ChatMessage) error {
	if messageID <= 0 {
		return ErrInvalidID
	}
	if tombstone == nil {
		return errors.New("nil tombstone")
	}
	ctx, span := repoTracer.Start(ctx, "ChatRepository.ReplaceWithTombstone", trace.WithAttributes(attribute.Int64("chat.message_id", messageID)))
	defer span.End()

	tombstone.IsInitial = false
	tombstone.UserDisplayName = sanitize.Line(tombstone.UserDisplayName)
	if tombstone.CreatedAt.IsZero() {
		tombstone.CreatedAt = time.Now()
	}

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*entity.ChatMessage)(nil)).
			Where("id = ?", messageID).
			Where("is_initial = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		_, err = tx.NewInsert().Model(tombstone).Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert tombstone: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tombstone failed")
	}
	return err
}

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kantanworks/orderdesk/internal/auth"
	"github.com/kantanworks/orderdesk/internal/config"
	"github.com/kantanworks/orderdesk/internal/dbtest"
	"github.com/kantanworks/orderdesk/internal/entity"
	"github.com/kantanworks/orderdesk/internal/messaging"
	chatrepo "github.com/kantanworks/orderdesk/internal/repository/chat"
	orderrepo "github.com/kantanworks/orderdesk/internal/repository/order"
	"github.com/kantanworks/orderdesk/pkg/errorbank"
)

var (
	author    = auth.Identity{UserID: 7, DisplayName: "Tanaka", Roles: []string{auth.RoleStaff}}
	bystander = auth.Identity{UserID: 8, DisplayName: "Sato", Roles: []string{auth.RoleStaff}}
	admin     = auth.Identity{UserID: 9, DisplayName: "Suzuki", Roles: []string{auth.RoleAdmin}}
	outsider  = auth.Identity{UserID: 10, DisplayName: "Guest"}
)

func newService(t *testing.T) (*Service, int64) {
	t.Helper()
	conns := dbtest.New(t)
	svc := NewService(Params{
		Repository: chatrepo.NewRepository(conns),
		Authorizer: auth.NewAuthorizer(),
		Config: config.Config{
			Messaging: config.Messaging{Enabled: true, Kafka: config.Kafka{Topic: "orderdesk.events"}},
		},
		Logger:    zap.NewNop(),
		Publisher: messaging.Noop("orderdesk.events"),
	})

	o := &entity.Order{ProjectName: "Chat fixture"}
	orderID, err := orderrepo.NewRepository(conns).Create(context.Background(), o)
	require.NoError(t, err)
	return svc, orderID
}

func requireKind(t *testing.T, err error, kind errorbank.Kind) {
	t.Helper()
	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, kind, appErr.Kind())
}

func TestMessagesLazySeed(t *testing.T) {
	svc, orderID := newService(t)
	ctx := context.Background()

	t.Run("anonymous reader gets empty thread", func(t *testing.T) {
		msgs, err := svc.Messages(ctx, orderID, auth.Identity{})
		require.NoError(t, err)
		require.Empty(t, msgs)
	})

	t.Run("staff reader seeds the creation marker", func(t *testing.T) {
		msgs, err := svc.Messages(ctx, orderID, author)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.True(t, msgs[0].IsInitial)
		require.Equal(t, entity.InitialChatText, msgs[0].Message)
	})

	t.Run("seed happens once", func(t *testing.T) {
		msgs, err := svc.Messages(ctx, orderID, bystander)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "Tanaka", msgs[0].UserDisplayName)
	})
}

func TestAddMessage(t *testing.T) {
	svc, orderID := newService(t)
	ctx := context.Background()

	t.Run("validations", func(t *testing.T) {
		_, err := svc.AddMessage(ctx, 0, author, "hi")
		requireKind(t, err, errorbank.KindBadRequest)

		_, err = svc.AddMessage(ctx, orderID, author, "   ")
		requireKind(t, err, errorbank.KindBadRequest)

		_, err = svc.AddMessage(ctx, orderID, auth.Identity{}, "hi")
		requireKind(t, err, errorbank.KindBadRequest)

		_, err = svc.AddMessage(ctx, orderID, outsider, "hi")
		requireKind(t, err, errorbank.KindForbidden)
	})

	t.Run("append", func(t *testing.T) {
		msg, err := svc.AddMessage(ctx, orderID, author, "Proof sent to the client.")
		require.NoError(t, err)
		require.Positive(t, msg.ID)
		require.False(t, msg.IsInitial)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := svc.AddMessage(ctx, 9999, author, "hi")
		requireKind(t, err, errorbank.KindNotFound)
	})
}

func TestDeleteMessageByAuthor(t *testing.T) {
	svc, orderID := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureInitialMessage(ctx, orderID, author))
	msg, err := svc.AddMessage(ctx, orderID, author, "typo")
	require.NoError(t, err)

	t.Run("other staff may not delete", func(t *testing.T) {
		err := svc.DeleteMessageByAuthor(ctx, msg.ID, bystander)
		requireKind(t, err, errorbank.KindForbidden)
	})

	t.Run("author deletes own message", func(t *testing.T) {
		require.NoError(t, svc.DeleteMessageByAuthor(ctx, msg.ID, author))

		msgs, err := svc.Messages(ctx, orderID, author)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Equal(t, "Tanaka deleted a message", msgs[1].Message)
	})

	t.Run("admin deletes anyone's message", func(t *testing.T) {
		other, err := svc.AddMessage(ctx, orderID, bystander, "wrong thread")
		require.NoError(t, err)
		require.NoError(t, svc.DeleteMessageByAuthor(ctx, other.ID, admin))

		msgs, err := svc.Messages(ctx, orderID, admin)
		require.NoError(t, err)
		require.Equal(t, "Suzuki deleted a message", msgs[len(msgs)-1].Message)
	})

	t.Run("initial message is protected even from admin", func(t *testing.T) {
		msgs, err := svc.Messages(ctx, orderID, admin)
		require.NoError(t, err)
		require.True(t, msgs[0].IsInitial)

		err = svc.DeleteMessageByAuthor(ctx, msgs[0].ID, admin)
		requireKind(t, err, errorbank.KindForbidden)
	})

	t.Run("missing message", func(t *testing.T) {
		err := svc.DeleteMessageByAuthor(ctx, 9999, author)
		requireKind(t, err, errorbank.KindNotFound)
	})

	t.Run("anonymous requester", func(t *testing.T) {
		err := svc.DeleteMessageByAuthor(ctx, msg.ID, auth.Identity{})
		requireKind(t, err, errorbank.KindBadRequest)
	})
}

func TestMessagesAfterSync(t *testing.T) {
	svc, orderID := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureInitialMessage(ctx, orderID, author))
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)
	_, err := svc.AddMessage(ctx, orderID, author, "after the cutoff")
	require.NoError(t, err)

	msgs, err := svc.MessagesAfter(ctx, orderID, cutoff)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "after the cutoff", msgs[0].Message)

	all, err := svc.MessagesAfter(ctx, orderID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

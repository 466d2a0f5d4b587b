package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kantanworks/orderdesk/internal/database"
	"github.com/kantanworks/orderdesk/internal/dbtest"
	"github.com/kantanworks/orderdesk/internal/entity"
	orderrepo "github.com/kantanworks/orderdesk/internal/repository/order"
)

func setup(t *testing.T) (*Repository, *database.Connections, int64) {
	t.Helper()
	conns := dbtest.New(t)
	repo := NewRepository(conns)

	o := &entity.Order{ProjectName: "Chat fixture"}
	orderID, err := orderrepo.NewRepository(conns).Create(context.Background(), o)
	require.NoError(t, err)
	return repo, conns, orderID
}

func TestEnsureInitialMessage(t *testing.T) {
	repo, conns, orderID := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureInitialMessage(ctx, orderID, 1, "Tanaka"))

	msgs, err := repo.Messages(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsInitial)
	require.Equal(t, entity.InitialChatText, msgs[0].Message)
	require.Equal(t, "Tanaka", msgs[0].UserDisplayName)

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, repo.EnsureInitialMessage(ctx, orderID, 2, "Sato"))
		msgs, err := repo.Messages(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "Tanaka", msgs[0].UserDisplayName)
	})

	t.Run("concurrent callers leave one row", func(t *testing.T) {
		o := &entity.Order{ProjectName: "Race fixture"}
		raceID, err := orderrepo.NewRepository(conns).Create(ctx, o)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.EnsureInitialMessage(ctx, raceID, int64(i+1), "Racer")
			}(i)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		msgs, err := repo.Messages(ctx, raceID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	})
}

func TestMessagesOrdering(t *testing.T) {
	repo, conns, orderID := setup(t)
	ctx := context.Background()

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fixture := []entity.ChatMessage{
		{OrderID: orderID, UserID: 1, UserDisplayName: "A", Message: "second", CreatedAt: at.Add(time.Minute)},
		{OrderID: orderID, UserID: 1, UserDisplayName: "A", Message: "first", CreatedAt: at},
		{OrderID: orderID, UserID: 2, UserDisplayName: "B", Message: "third", CreatedAt: at.Add(time.Minute)},
	}
	_, err := conns.Writer.NewInsert().Model(&fixture).Exec(ctx)
	require.NoError(t, err)

	msgs, err := repo.Messages(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Message)
	// Equal timestamps fall back to insertion order via id.
	require.Equal(t, "second", msgs[1].Message)
	require.Equal(t, "third", msgs[2].Message)
}

func TestMessagesAfter(t *testing.T) {
	repo, conns, orderID := setup(t)
	ctx := context.Background()

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fixture := []entity.ChatMessage{
		{OrderID: orderID, UserID: 1, UserDisplayName: "A", Message: "old", CreatedAt: at},
		{OrderID: orderID, UserID: 1, UserDisplayName: "A", Message: "new", CreatedAt: at.Add(time.Hour)},
	}
	_, err := conns.Writer.NewInsert().Model(&fixture).Exec(ctx)
	require.NoError(t, err)

	t.Run("zero since returns everything", func(t *testing.T) {
		msgs, err := repo.MessagesAfter(ctx, orderID, time.Time{})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
	})

	t.Run("cutoff is exclusive", func(t *testing.T) {
		msgs, err := repo.MessagesAfter(ctx, orderID, at)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "new", msgs[0].Message)
	})

	t.Run("nothing newer", func(t *testing.T) {
		msgs, err := repo.MessagesAfter(ctx, orderID, at.Add(2*time.Hour))
		require.NoError(t, err)
		require.Empty(t, msgs)
	})
}

func TestAppend(t *testing.T) {
	repo, _, orderID := setup(t)
	ctx := context.Background()

	msg := &entity.ChatMessage{OrderID: orderID, UserID: 3, UserDisplayName: "Sato", Message: "On it."}
	require.NoError(t, repo.Append(ctx, msg))
	require.Positive(t, msg.ID)

	got, err := repo.Find(ctx, msg.ID)
	require.NoError(t, err)
	require.False(t, got.IsInitial)
	require.Equal(t, "On it.", got.Message)

	t.Run("missing order", func(t *testing.T) {
		err := repo.Append(ctx, &entity.ChatMessage{OrderID: 9999, UserID: 3, Message: "lost"})
		require.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestFindMissing(t *testing.T) {
	repo, _, _ := setup(t)
	_, err := repo.Find(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceWithTombstone(t *testing.T) {
	repo, _, orderID := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureInitialMessage(ctx, orderID, 1, "Tanaka"))
	msg := &entity.ChatMessage{OrderID: orderID, UserID: 3, UserDisplayName: "Sato", Message: "typo"}
	require.NoError(t, repo.Append(ctx, msg))

	tombstone := &entity.ChatMessage{OrderID: orderID, UserID: 3, UserDisplayName: "Sato", Message: "Sato deleted a message"}
	require.NoError(t, repo.ReplaceWithTombstone(ctx, msg.ID, tombstone))

	_, err := repo.Find(ctx, msg.ID)
	require.ErrorIs(t, err, ErrNotFound)

	msgs, err := repo.Messages(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "Sato deleted a message", msgs[1].Message)
	require.False(t, msgs[1].IsInitial)

	t.Run("initial message is protected", func(t *testing.T) {
		initial := msgs[0]
		require.True(t, initial.IsInitial)
		err := repo.ReplaceWithTombstone(ctx, initial.ID, &entity.ChatMessage{OrderID: orderID, Message: "x"})
		require.ErrorIs(t, err, ErrNotFound)

		got, err := repo.Find(ctx, initial.ID)
		require.NoError(t, err)
		require.Equal(t, entity.InitialChatText, got.Message)
	})

	t.Run("missing message", func(t *testing.T) {
		err := repo.ReplaceWithTombstone(ctx, 9999, &entity.ChatMessage{OrderID: orderID, Message: "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

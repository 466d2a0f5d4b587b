package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kantanworks/orderdesk/internal/dbtest"
	"github.com/kantanworks/orderdesk/internal/entity"
)

func newRepo(t *testing.T) (*Repository, context.Context) {
	t.Helper()
	return NewRepository(dbtest.New(t)), context.Background()
}

func TestCreateGeneratesOrderNumber(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	epoch := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix()
	o := &entity.Order{ProjectName: "First", Time: epoch}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)
	require.Positive(t, id)
	require.Equal(t, "2024-0501-001", o.OrderNumber)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "2024-0501-001", got.OrderNumber)
	require.Equal(t, entity.ProgressIntake, got.Progress)
	require.Equal(t, "Intake", got.Status)
	require.False(t, got.OrderDate.IsZero())
}

func TestCreateSameDaySequence(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	epoch := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Unix()
	for i := 0; i < 2; i++ {
		o := &entity.Order{ProjectName: fmt.Sprintf("Existing %d", i+1), Time: epoch}
		_, err := repo.Create(ctx, o)
		require.NoError(t, err)
	}

	o := &entity.Order{ClientID: 7, ProjectName: "Site Revamp", Time: epoch}
	_, err := repo.Create(ctx, o)
	require.NoError(t, err)
	require.Equal(t, "2024-0501-003", o.OrderNumber)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	epoch := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Unix()
	first := &entity.Order{ProjectName: "First", Time: epoch}
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	// A gap in the sequence makes count+1 collide with a committed number.
	gapped := &entity.Order{ProjectName: "Gapped", Time: epoch, OrderNumber: "2024-0501-003"}
	_, err = repo.Create(ctx, gapped)
	require.NoError(t, err)

	o := &entity.Order{ProjectName: "Raced", Time: epoch}
	_, err = repo.Create(ctx, o)
	require.NoError(t, err)
	require.Equal(t, "2024-0501-004", o.OrderNumber)
}

func TestCreateKeepsSuppliedNumber(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	o := &entity.Order{ProjectName: "Manual", OrderNumber: "CUSTOM-42"}
	_, err := repo.Create(ctx, o)
	require.NoError(t, err)
	require.Equal(t, "CUSTOM-42", o.OrderNumber)
}

func TestCreateBuildsDenormalizedFields(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	o := &entity.Order{
		CustomerName: "  Hoshino   Printing ",
		UserName:     "Sato",
		ProjectName:  "Spring\tcatalog",
		Progress:     entity.ProgressBooked,
	}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Hoshino Printing", got.CustomerName)
	require.Equal(t, "Spring catalog", got.ProjectName)
	require.Equal(t, "Hoshino Printing Sato Spring catalog", got.SearchField)
	require.Equal(t, "Booked", got.Status)
}

func TestTotalAmountRoundTrips(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	// The zero default must scan back as a float; a store that keeps it as
	// an integer breaks every read of the row.
	zero := &entity.Order{ProjectName: "Unpriced"}
	zeroID, err := repo.Create(ctx, zero)
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, zeroID)
	require.NoError(t, err)
	require.Zero(t, got.TotalAmount)

	priced := &entity.Order{ProjectName: "Priced", TotalAmount: 12800.5}
	pricedID, err := repo.Create(ctx, priced)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, pricedID)
	require.NoError(t, err)
	require.Equal(t, 12800.5, got.TotalAmount)
}

func TestGetByIDValidation(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidID)

	_, err = repo.GetByID(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	seed := []entity.Order{
		{ClientID: 1, CustomerName: "Aozora Design", ProjectName: "Site revamp", Progress: entity.ProgressBooked, Time: 100},
		{ClientID: 2, CustomerName: "Hoshino Printing", ProjectName: "Catalog", Progress: entity.ProgressQuoting, Time: 200},
		{ClientID: 1, CustomerName: "Mikado Foods", ProjectName: "Menu shoot", Progress: entity.ProgressBooked, Time: 300},
	}
	for i := range seed {
		o := seed[i]
		_, err := repo.Create(ctx, &o)
		require.NoError(t, err)
	}

	t.Run("by progress", func(t *testing.T) {
		p := entity.ProgressBooked
		got, err := repo.List(ctx, Filter{Progress: &p})
		require.NoError(t, err)
		require.Len(t, got, 2)
		count, err := repo.Count(ctx, Filter{Progress: &p})
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("by client", func(t *testing.T) {
		clientID := int64(2)
		got, err := repo.List(ctx, Filter{ClientID: &clientID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Hoshino Printing", got[0].CustomerName)
	})

	t.Run("by search substring", func(t *testing.T) {
		got, err := repo.List(ctx, Filter{Search: "revamp"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Site revamp", got[0].ProjectName)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
		require.NoError(t, err)
		require.Len(t, page, 2)
		rest, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, rest, 1)
	})

	t.Run("default sort is time desc", func(t *testing.T) {
		got, err := repo.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, int64(300), got[0].Time)
		require.Equal(t, int64(100), got[2].Time)
	})

	t.Run("explicit sort", func(t *testing.T) {
		got, err := repo.List(ctx, Filter{OrderBy: "id", Order: "ASC"})
		require.NoError(t, err)
		require.Equal(t, int64(100), got[0].Time)
	})

	t.Run("hostile sort column falls back", func(t *testing.T) {
		p := entity.ProgressBooked
		got, err := repo.List(ctx, Filter{Progress: &p, OrderBy: "DROP TABLE orders", Order: "ASC"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, int64(300), got[0].Time)
	})
}

func TestListSearchTreatsWildcardsLiterally(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	seed := []entity.Order{
		{CustomerName: "100% Cotton", ProjectName: "Tote bags"},
		{CustomerName: "100 Grade Cotton", ProjectName: "Tote bags"},
	}
	for i := range seed {
		o := seed[i]
		_, err := repo.Create(ctx, &o)
		require.NoError(t, err)
	}

	got, err := repo.List(ctx, Filter{Search: "100%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "100% Cotton", got[0].CustomerName)

	got, err = repo.List(ctx, Filter{Search: "_"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUpdate(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	o := &entity.Order{CustomerName: "Aozora Design", UserName: "Tanaka", ProjectName: "Old name"}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)

	t.Run("empty partial rejected", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{})
		require.ErrorIs(t, err, ErrEmptyUpdate)
	})

	t.Run("id stripped from payload", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"id": int64(9999), "memo": "note"})
		require.NoError(t, err)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "note", got.Memo)
	})

	t.Run("only id means empty", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"id": int64(9999)})
		require.ErrorIs(t, err, ErrEmptyUpdate)
	})

	t.Run("search field recomputed", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"project_name": "New name"})
		require.NoError(t, err)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "New name", got.ProjectName)
		require.Equal(t, "Aozora Design Tanaka New name", got.SearchField)
	})

	t.Run("status follows progress", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"progress": int(entity.ProgressInvoiced)})
		require.NoError(t, err)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entity.ProgressInvoiced, got.Progress)
		require.Equal(t, "Invoiced", got.Status)
	})

	t.Run("missing row", func(t *testing.T) {
		err := repo.Update(ctx, 9999, map[string]any{"memo": "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateOwnsDenormalizedFields(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	o := &entity.Order{CustomerName: "Aozora Design", UserName: "Tanaka", ProjectName: "Site revamp"}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)

	t.Run("caller-supplied status and search_field dropped", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{
			"status":       "Paid",
			"search_field": "poisoned",
			"memo":         "note",
		})
		require.NoError(t, err)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "note", got.Memo)
		require.Equal(t, "Intake", got.Status)
		require.Equal(t, "Aozora Design Tanaka Site revamp", got.SearchField)
	})

	t.Run("only denormalized fields means empty", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"status": "Paid", "search_field": "x"})
		require.ErrorIs(t, err, ErrEmptyUpdate)
	})

	t.Run("unknown progress in generic payload rejected", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"progress": float64(99)})
		require.ErrorIs(t, err, ErrUnknownProgress)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entity.ProgressIntake, got.Progress)
		require.Equal(t, "Intake", got.Status)
	})

	t.Run("non-numeric progress rejected", func(t *testing.T) {
		err := repo.Update(ctx, id, map[string]any{"progress": "paid"})
		require.ErrorIs(t, err, ErrUnknownProgress)
	})
}

func TestUpdateProgress(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	o := &entity.Order{ProjectName: "Pipeline"}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)

	t.Run("unknown code rejected before store access", func(t *testing.T) {
		err := repo.UpdateProgress(ctx, id, entity.Progress(99))
		require.ErrorIs(t, err, ErrUnknownProgress)
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entity.ProgressIntake, got.Progress)
	})

	t.Run("backward jump allowed", func(t *testing.T) {
		require.NoError(t, repo.UpdateProgress(ctx, id, entity.ProgressPaid))
		require.NoError(t, repo.UpdateProgress(ctx, id, entity.ProgressIntake))
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entity.ProgressIntake, got.Progress)
	})
}

func TestDeleteCascades(t *testing.T) {
	conns := dbtest.New(t)
	repo := NewRepository(conns)
	ctx := context.Background()

	o := &entity.Order{ProjectName: "Doomed"}
	id, err := repo.Create(ctx, o)
	require.NoError(t, err)

	items := []entity.InvoiceItem{{OrderID: id, ItemName: "Design", Amount: 100}}
	_, err = conns.Writer.NewInsert().Model(&items).Exec(ctx)
	require.NoError(t, err)
	costs := []entity.CostItem{{OrderID: id, ItemName: "Print", Amount: 50}}
	_, err = conns.Writer.NewInsert().Model(&costs).Exec(ctx)
	require.NoError(t, err)
	msgs := []entity.ChatMessage{{OrderID: id, UserID: 1, Message: "hello", CreatedAt: time.Now()}}
	_, err = conns.Writer.NewInsert().Model(&msgs).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))

	for _, model := range []any{
		(*entity.InvoiceItem)(nil),
		(*entity.CostItem)(nil),
		(*entity.ChatMessage)(nil),
	} {
		count, err := conns.Reader.NewSelect().Model(model).Where("order_id = ?", id).Count(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	}

	_, err = repo.GetByID(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, repo.Delete(ctx, id), ErrNotFound)
}

func TestNextIDAfterDelete(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	var ids []int64
	for i, epoch := range []int64{300, 100, 200} {
		o := &entity.Order{ProjectName: fmt.Sprintf("Order %d", i+1), Time: epoch}
		id, err := repo.Create(ctx, o)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	t.Run("next higher id wins", func(t *testing.T) {
		next, err := repo.NextIDAfterDelete(ctx, ids[0])
		require.NoError(t, err)
		require.Equal(t, ids[1], next)
	})

	t.Run("falls back to lower id", func(t *testing.T) {
		next, err := repo.NextIDAfterDelete(ctx, ids[2])
		require.NoError(t, err)
		require.Equal(t, ids[1], next)
	})

	t.Run("no orders yields sentinel", func(t *testing.T) {
		for _, id := range ids {
			require.NoError(t, repo.Delete(ctx, id))
		}
		next, err := repo.NextIDAfterDelete(ctx, ids[1])
		require.NoError(t, err)
		require.Zero(t, next)
	})
}

func TestProgressCounts(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	for _, p := range []entity.Progress{entity.ProgressBooked, entity.ProgressBooked, entity.ProgressPaid} {
		o := &entity.Order{ProjectName: "Counted", Progress: p}
		_, err := repo.Create(ctx, o)
		require.NoError(t, err)
	}

	counts, err := repo.ProgressCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 6)
	require.Equal(t, 2, counts[entity.ProgressBooked])
	require.Equal(t, 1, counts[entity.ProgressPaid])
	require.Zero(t, counts[entity.ProgressIntake])
}

package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kantanworks/orderdesk/internal/database"
	"github.com/kantanworks/orderdesk/internal/entity"
	chatrepo "github.com/kantanworks/orderdesk/internal/repository/chat"
	orderrepo "github.com/kantanworks/orderdesk/internal/repository/order"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder loads sample data for local/dev setups through the real
// repositories, so seeded rows carry generated order numbers, denormalized
// fields and initial chat messages exactly like production writes.
type Seeder struct {
	db     *bun.DB
	orders *orderrepo.Repository
	chat   *chatrepo.Repository
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary connection.
func New(conns *database.Connections, orders *orderrepo.Repository, chat *chatrepo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, orders: orders, chat: chat, logger: logger}
}

const seedUserID = 1

// Run seeds sample orders, each with its initial chat message and a couple
// of line items. Safe to rerun: seeding is skipped when orders exist.
func (s *Seeder) Run(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("seed skipped; orders already present", zap.Int("count", count))
		return nil
	}

	samples := []entity.Order{
		{
			ClientID:     1,
			CustomerName: "Hoshino Printing",
			UserName:     "Sato",
			ProjectName:  "Spring catalog",
			Progress:     entity.ProgressBooked,
			TotalAmount:  184000,
		},
		{
			ClientID:     2,
			CustomerName: "Aozora Design",
			UserName:     "Tanaka",
			ProjectName:  "Site revamp",
			Progress:     entity.ProgressQuoting,
			TotalAmount:  96000,
		},
		{
			ClientID:     3,
			CustomerName: "Mikado Foods",
			UserName:     "Suzuki",
			ProjectName:  "Menu photography",
			Progress:     entity.ProgressIntake,
			Memo:         "Rush job, confirm studio availability.",
		},
	}

	for i := range samples {
		o := samples[i]
		id, err := s.orders.Create(ctx, &o)
		if err != nil {
			return err
		}
		if err := s.chat.EnsureInitialMessage(ctx, id, seedUserID, "Seeder"); err != nil {
			return err
		}

		items := []entity.InvoiceItem{
			{OrderID: id, ItemName: "Design", Quantity: 1, UnitPrice: 50000, Amount: 50000, SortOrder: 1, CreatedAt: time.Now()},
			{OrderID: id, ItemName: "Production", Quantity: 2, UnitPrice: 30000, Amount: 60000, SortOrder: 2, CreatedAt: time.Now()},
		}
		if _, err := s.db.NewInsert().Model(&items).Exec(ctx); err != nil {
			return err
		}
		costs := []entity.CostItem{
			{OrderID: id, ItemName: "Outsourced print", Quantity: 1, UnitPrice: 20000, Amount: 20000, SortOrder: 1, CreatedAt: time.Now()},
		}
		if _, err := s.db.NewInsert().Model(&costs).Exec(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	return nil
}

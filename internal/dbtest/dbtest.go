// Package dbtest opens throwaway in-memory SQLite databases carrying the
// production schema, for repository and service tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/kantanworks/orderdesk/internal/database"
)

var schema = []string{
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number VARCHAR(50) NOT NULL,
		client_id BIGINT,
		customer_name VARCHAR(255) NOT NULL DEFAULT '',
		user_name VARCHAR(255) NOT NULL DEFAULT '',
		project_name VARCHAR(255) NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		search_field TEXT NOT NULL DEFAULT '',
		order_date DATE NOT NULL,
		desired_delivery_date DATE,
		expected_delivery_date DATE,
		completion_date DATE,
		total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 1,
		status VARCHAR(20) NOT NULL DEFAULT 'Intake',
		time BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX orders_order_number_key ON orders (order_number)`,
	`CREATE TABLE order_invoice_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id BIGINT NOT NULL,
		item_name VARCHAR(255) NOT NULL DEFAULT '',
		quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE order_cost_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id BIGINT NOT NULL,
		item_name VARCHAR(255) NOT NULL DEFAULT '',
		quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE order_staff_chat (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		user_display_name VARCHAR(255) NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		is_initial BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX order_staff_chat_initial_key
		ON order_staff_chat (order_id) WHERE is_initial`,
}

// New returns connections over a fresh in-memory database with the schema
// applied. A single pooled connection keeps the :memory: database alive and
// serializes concurrent test writers the way the production store would.
func New(t *testing.T) *database.Connections {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	return &database.Connections{Writer: db, Reader: db}
}

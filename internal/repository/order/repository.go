package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
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

var repoTracer = otel.Tracer("github.com/kantanworks/orderdesk/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// ErrInvalidID is returned for non-positive order ids.
var ErrInvalidID = errors.New("invalid order id")

// ErrEmptyUpdate is returned when a partial update carries no updatable fields.
var ErrEmptyUpdate = errors.New("empty update")

// ErrUnknownProgress is returned for progress codes outside the label table.
var ErrUnknownProgress = errors.New("unknown progress code")

const (
	defaultLimit     = 20
	numberDateLayout = "2006-0102"
	sequenceWidth    = 3
)

// Columns callers may sort listings by. Anything else falls back to the
// default ordering instead of reaching the query, so user-controlled sort
// fields can never inject SQL.
var allowedSortColumns = map[string]struct{}{
	"id":            {},
	"time":          {},
	"customer_name": {},
	"project_name":  {},
	"progress":      {},
}

// Filter narrows listings. Nil pointer fields are ignored; Search matches as
// a substring across customer name, user name, project name and search field.
type Filter struct {
	Progress *entity.Progress
	ClientID *int64
	Search   string
	Limit    int
	Offset   int
	OrderBy  string
	Order    string
}

// Repository is the exclusive owner of order persistence and pipeline-state
// transitions.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create fills defaults, sanitizes text fields, generates the order number
// when absent, and inserts the row. The count-then-insert number generation
// is not atomic under concurrent creates; the unique index on order_number is
// the true guard, and a conflict triggers one regeneration from the highest
// committed same-day sequence.
func (r *Repository) Create(ctx context.Context, o *entity.Order) (int64, error) {
	if o == nil {
		return 0, errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	now := time.Now()
	if o.Time == 0 {
		o.Time = now.Unix()
	}
	if o.Progress == 0 {
		o.Progress = entity.ProgressIntake
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Unix(o.Time, 0)
	}
	o.CustomerName = sanitize.Line(o.CustomerName)
	o.UserName = sanitize.Line(o.UserName)
	o.ProjectName = sanitize.Line(o.ProjectName)
	o.Memo = sanitize.Text(o.Memo)
	o.Status = o.Progress.Label()
	o.SearchField = buildSearchField(o.CustomerName, o.UserName, o.ProjectName)
	o.CreatedAt = now
	o.UpdatedAt = now

	generated := o.OrderNumber == ""
	if generated {
		number, err := r.nextOrderNumber(ctx, o.Time)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		o.OrderNumber = number
	}

	_, err := r.writer.NewInsert().Model(o).Exec(ctx)
	if err != nil && generated && database.IsUniqueViolation(err) {
		// Another create committed the same sequence between our count and
		// insert. Regenerate once from the committed maximum and retry.
		number, genErr := r.orderNumberAfterConflict(ctx, o.Time)
		if genErr != nil {
			span.RecordError(genErr)
			return 0, genErr
		}
		o.ID = 0
		o.OrderNumber = number
		_, err = r.writer.NewInsert().Model(o).Exec(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID), attribute.String("order.number", o.OrderNumber))
	return o.ID, nil
}

// GetByID fetches an order by primary key using the read connection.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	o := new(entity.Order)
	err := r.reader.NewSelect().Model(o).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return o, nil
}

// List returns orders matching the filter, paginated and sorted.
func (r *Repository) List(ctx context.Context, f Filter) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	column, direction := sanitizeSort(f.OrderBy, f.Order)

	var orders []entity.Order
	q := r.reader.NewSelect().Model(&orders)
	q = applyFilter(q, f)
	err := q.OrderExpr("? ?", bun.Ident(column), bun.Safe(direction)).
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Count returns the number of orders matching the filter, for pagination UIs.
func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Count")
	defer span.End()

	q := r.reader.NewSelect().Model((*entity.Order)(nil))
	q = applyFilter(q, f)
	count, err := q.Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}

// Update applies a partial update. The id field and the denormalized status
// and search_field columns are stripped from the payload; both denormalized
// columns are recomputed here and only here, so callers cannot desync them
// from their inputs. The recomputation runs inside the same transaction as
// the write.
func (r *Repository) Update(ctx context.Context, id int64, fields map[string]any) error {
	if id <= 0 {
		return ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	update := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		update[k] = v
	}
	delete(update, "id")
	delete(update, "status")
	delete(update, "search_field")
	if len(update) == 0 {
		return ErrEmptyUpdate
	}

	for _, col := range []string{"customer_name", "user_name", "project_name"} {
		if v, ok := update[col].(string); ok {
			update[col] = sanitize.Line(v)
		}
	}
	if v, ok := update["memo"].(string); ok {
		update["memo"] = sanitize.Text(v)
	}
	if raw, ok := update["progress"]; ok {
		p, ok := progressValue(raw)
		if !ok || !p.Valid() {
			return ErrUnknownProgress
		}
		update["progress"] = int(p)
		update["status"] = p.Label()
	}
	update["updated_at"] = time.Now()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if touchesSearchField(update) {
			current := new(entity.Order)
			err := tx.NewSelect().Model(current).Where("id = ?", id).Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			update["search_field"] = buildSearchField(
				stringField(update, "customer_name", current.CustomerName),
				stringField(update, "user_name", current.UserName),
				stringField(update, "project_name", current.ProjectName),
			)
		}

		res, err := tx.NewUpdate().Model(&update).Table("orders").Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			// Idempotent no-op updates are allowed, but the row must exist.
			exists, err := tx.NewSelect().Model((*entity.Order)(nil)).Where("id = ?", id).Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrEmptyUpdate) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateProgress validates the code against the label table before delegating
// to Update. Transitions are unconstrained: any valid code may follow any
// other.
func (r *Repository) UpdateProgress(ctx context.Context, id int64, progress entity.Progress) error {
	if !progress.Valid() {
		return ErrUnknownProgress
	}
	return r.Update(ctx, id, map[string]any{"progress": progress})
}

// UpdateProjectName sanitizes the name and delegates to Update.
func (r *Repository) UpdateProjectName(ctx context.Context, id int64, name string) error {
	return r.Update(ctx, id, map[string]any{"project_name": name})
}

// Delete removes the order and every dependent row (invoice items, cost
// items, chat messages) in one transaction, so a mid-cascade failure leaves
// no partial state.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.InvoiceItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete invoice items: %w", err)
		}
		if _, err := tx.NewDelete().Model((*entity.CostItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete cost items: %w", err)
		}
		if _, err := tx.NewDelete().Model((*entity.ChatMessage)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete chat messages: %w", err)
		}

		res, err := tx.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// NextIDAfterDelete picks where a UI should land after deleting deletedID:
// the next higher id, else the next lower id, else the most recent order by
// time, else 0 meaning no orders remain.
func (r *Repository) NextIDAfterDelete(ctx context.Context, deletedID int64) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.NextIDAfterDelete", trace.WithAttributes(attribute.Int64("order.deleted_id", deletedID)))
	defer span.End()

	var id int64
	err := r.reader.NewSelect().Model((*entity.Order)(nil)).
		Column("id").
		Where("id > ?", deletedID).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		return 0, err
	}

	err = r.reader.NewSelect().Model((*entity.Order)(nil)).
		Column("id").
		Where("id < ?", deletedID).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		return 0, err
	}

	err = r.reader.NewSelect().Model((*entity.Order)(nil)).
		Column("id").
		OrderExpr("time DESC").
		Limit(1).
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return id, nil
}

// ProgressCounts returns how many orders sit at each pipeline stage,
// zero-filled for stages with no orders.
func (r *Repository) ProgressCounts(ctx context.Context) (map[entity.Progress]int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ProgressCounts")
	defer span.End()

	var rows []struct {
		Progress entity.Progress `bun:"progress"`
		Count    int             `bun:"count"`
	}
	err := r.reader.NewSelect().Model((*entity.Order)(nil)).
		ColumnExpr("progress, count(*) AS count").
		GroupExpr("progress").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return nil, err
	}

	counts := make(map[entity.Progress]int, len(entity.ProgressLabels()))
	for code := range entity.ProgressLabels() {
		counts[code] = 0
	}
	for _, row := range rows {
		counts[row.Progress] = row.Count
	}
	return counts, nil
}

// nextOrderNumber builds <date-prefix>-<seq> where seq is the same-day order
// count plus one, zero-padded to three digits.
func (r *Repository) nextOrderNumber(ctx context.Context, epoch int64) (string, error) {
	prefix := time.Unix(epoch, 0).Format(numberDateLayout) + "-"
	count, err := r.writer.NewSelect().Model((*entity.Order)(nil)).
		Where("order_number LIKE ? ESCAPE ?", escapeLike(prefix)+"%", likeEscape).
		Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count same-day orders: %w", err)
	}
	return formatOrderNumber(prefix, count+1), nil
}

// orderNumberAfterConflict reads the highest committed same-day sequence and
// returns the one after it. Counting is not enough here: the losing insert's
// own count already included the winner, so a plain recount could hand back
// the same colliding number.
func (r *Repository) orderNumberAfterConflict(ctx context.Context, epoch int64) (string, error) {
	prefix := time.Unix(epoch, 0).Format(numberDateLayout) + "-"
	var max string
	err := r.writer.NewSelect().Model((*entity.Order)(nil)).
		Column("order_number").
		Where("order_number LIKE ? ESCAPE ?", escapeLike(prefix)+"%", likeEscape).
		OrderExpr("order_number DESC").
		Limit(1).
		Scan(ctx, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return formatOrderNumber(prefix, 1), nil
	}
	if err != nil {
		return "", fmt.Errorf("max same-day order number: %w", err)
	}

	seq := 0
	if suffix, ok := strings.CutPrefix(max, prefix); ok {
		if n, err := strconv.Atoi(suffix); err == nil {
			seq = n
		}
	}
	return formatOrderNumber(prefix, seq+1), nil
}

func formatOrderNumber(prefix string, seq int) string {
	return prefix + fmt.Sprintf("%0*d", sequenceWidth, seq)
}

func applyFilter(q *bun.SelectQuery, f Filter) *bun.SelectQuery {
	if f.Progress != nil {
		q = q.Where("progress = ?", *f.Progress)
	}
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("customer_name LIKE ? ESCAPE ?", pattern, likeEscape).
				WhereOr("user_name LIKE ? ESCAPE ?", pattern, likeEscape).
				WhereOr("project_name LIKE ? ESCAPE ?", pattern, likeEscape).
				WhereOr("search_field LIKE ? ESCAPE ?", pattern, likeEscape)
		})
	}
	return q
}

// sanitizeSort restricts sorting to the allow-list; anything else silently
// falls back to time DESC rather than failing.
func sanitizeSort(column, direction string) (string, string) {
	if _, ok := allowedSortColumns[column]; !ok {
		return "time", "DESC"
	}
	switch strings.ToUpper(direction) {
	case "ASC":
		return column, "ASC"
	case "DESC":
		return column, "DESC"
	default:
		return "time", "DESC"
	}
}

// likeEscape is bound as the ESCAPE argument of every LIKE: SQLite has no
// default escape character, so the backslashes from escapeLike must be
// declared explicitly. Binding it as a parameter sidesteps per-dialect
// string-literal escaping rules.
const likeEscape = `\`

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func buildSearchField(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func touchesSearchField(update map[string]any) bool {
	for _, col := range []string{"customer_name", "user_name", "project_name"} {
		if _, ok := update[col]; ok {
			return true
		}
	}
	return false
}

func stringField(update map[string]any, key, fallback string) string {
	if v, ok := update[key].(string); ok {
		return v
	}
	return fallback
}

func progressValue(v any) (entity.Progress, bool) {
	switch p := v.(type) {
	case entity.Progress:
		return p, true
	case int:
		return entity.Progress(p), true
	case int64:
		return entity.Progress(p), true
	case float64:
		return entity.Progress(int(p)), true
	default:
		return 0, false
	}
}

package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kantanworks/orderdesk/internal/dto"
	"github.com/kantanworks/orderdesk/internal/entity"
	"github.com/kantanworks/orderdesk/internal/presentation/http/response"
	repo "github.com/kantanworks/orderdesk/internal/repository/order"
	service "github.com/kantanworks/orderdesk/internal/service/order"
	"github.com/kantanworks/orderdesk/internal/transport/http/identity"
	"github.com/kantanworks/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/kantanworks/orderdesk/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/progress-counts", h.progressCounts)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id", h.update)
	g.PATCH("/:id/progress", h.updateProgress)
	g.PATCH("/:id/project-name", h.updateProjectName)
	g.DELETE("/:id", h.remove)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	f := repo.Filter{
		Search:  c.QueryParam("search"),
		OrderBy: c.QueryParam("order_by"),
		Order:   c.QueryParam("order"),
	}
	if v := c.QueryParam("progress"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid progress filter", errorbank.WithCause(err))).Build()
		}
		p := entity.Progress(code)
		f.Progress = &p
	}
	if v := c.QueryParam("client_id"); v != "" {
		clientID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid client_id filter", errorbank.WithCause(err))).Build()
		}
		f.ClientID = &clientID
	}
	if v := c.QueryParam("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	result, err := h.svc.List(ctx, f)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(result.Orders)).
		WithPage(result.Total, f.Limit, f.Offset).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	o, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderNumber  string  `json:"order_number"`
		ClientID     int64   `json:"client_id"`
		CustomerName string  `json:"customer_name"`
		UserName     string  `json:"user_name"`
		ProjectName  string  `json:"project_name"`
		Memo         string  `json:"memo"`
		TotalAmount  float64 `json:"total_amount"`
		Progress     int     `json:"progress"`
		Time         int64   `json:"time"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	o := &entity.Order{
		OrderNumber:  payload.OrderNumber,
		ClientID:     payload.ClientID,
		CustomerName: payload.CustomerName,
		UserName:     payload.UserName,
		ProjectName:  payload.ProjectName,
		Memo:         payload.Memo,
		TotalAmount:  payload.TotalAmount,
		Progress:     entity.Progress(payload.Progress),
		Time:         payload.Time,
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	created, err := h.svc.Create(ctx, o, identity.CallerIdentity(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.Int64("order.id", created.ID), attribute.String("order.number", created.OrderNumber))
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(created)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	fields := map[string]any{}
	if err := c.Bind(&fields); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.Update(ctx, id, fields); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{"id": id}).Build()
}

func (h *Handler) updateProgress(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Progress int `json:"progress"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateProgress", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.UpdateProgress(ctx, id, entity.Progress(payload.Progress)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{"id": id}).Build()
}

func (h *Handler) updateProjectName(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		ProjectName string `json:"project_name"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateProjectName", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.UpdateProjectName(ctx, id, payload.ProjectName); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{"id": id}).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	result, err := h.svc.Delete(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{
		"deleted_id": result.DeletedID,
		"next_id":    result.NextID,
	}).Build()
}

func (h *Handler) progressCounts(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.progressCounts")
	defer span.End()

	counts, err := h.svc.ProgressCounts(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make(map[string]int, len(counts))
	for code, count := range counts {
		out[strconv.Itoa(int(code))] = count
	}
	return b.WithData(out).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

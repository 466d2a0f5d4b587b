package chat

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kantanworks/orderdesk/internal/dto"
	"github.com/kantanworks/orderdesk/internal/presentation/http/response"
	service "github.com/kantanworks/orderdesk/internal/service/chat"
	"github.com/kantanworks/orderdesk/internal/transport/http/identity"
	"github.com/kantanworks/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/kantanworks/orderdesk/transport/http/chat")

// Handler exposes the staff chat endpoints. Clients render the thread from
// GET and then poll the updates endpoint with their newest timestamp.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a chat Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/orders/:id/chat", h.messages)
	e.GET("/orders/:id/chat/updates", h.updates)
	e.POST("/orders/:id/chat", h.post)
	e.DELETE("/chat/messages/:id", h.remove)
}

func (h *Handler) messages(c echo.Context) error {
	b := response.New(c)

	orderID, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "chat.messages", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	messages, err := h.svc.Messages(ctx, orderID, identity.CallerIdentity(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromChatMessages(messages)).Build()
}

func (h *Handler) updates(c echo.Context) error {
	b := response.New(c)

	orderID, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	since, err := parseSince(c.QueryParam("since"))
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "chat.updates", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	messages, err := h.svc.MessagesAfter(ctx, orderID, since)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromChatMessages(messages)).Build()
}

func (h *Handler) post(c echo.Context) error {
	b := response.New(c)

	orderID, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "chat.post", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	msg, err := h.svc.AddMessage(ctx, orderID, identity.CallerIdentity(c), payload.Message)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromChatMessage(msg)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	messageID, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "chat.delete", trace.WithAttributes(attribute.Int64("chat.message_id", messageID)))
	defer span.End()

	if err := h.svc.DeleteMessageByAuthor(ctx, messageID, identity.CallerIdentity(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{"deleted_id": messageID}).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

// parseSince accepts RFC 3339 or unix seconds; empty means "from the start".
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0), nil
	}
	return time.Time{}, errorbank.BadRequest("invalid since value")
}

package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/contratos-api/internal/application/dto"
	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

type notificationService interface {
	List(ctx context.Context, userID string, opts notification.ListOptions) (*notification.ListResult, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*entity.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler endpoints de la bandeja de notificaciones del usuario.
type NotificationHandler struct {
	svc notificationService
}

// NewNotificationHandler construye el handler de notificaciones.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List godoc
// @Summary      Listar notificaciones
// @Description  Más recientes primero, con el total de no leídas.
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        page         query  int   false  "página (desde 1)"
// @Param        limit        query  int   false  "tamaño de página (default 20, max 100)"
// @Param        unread_only  query  bool  false  "solo no leídas"
// @Success      200  {object}  dto.NotificationListResponse
// @Router       /api/notifications [get]
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	res, err := h.svc.List(c.UserContext(), GetUserID(c), notification.ListOptions{
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("limit", 0),
		UnreadOnly: c.QueryBool("unread_only", false),
	})
	if err != nil {
		return writeError(c, err)
	}
	totalPages := 0
	if res.PageSize > 0 {
		totalPages = (res.Total + res.PageSize - 1) / res.PageSize
	}
	return c.JSON(dto.NotificationListResponse{
		Notifications: res.Items,
		Unread:        res.Unread,
		Page: dto.PageResponse{
			Page:       res.Page,
			Limit:      res.PageSize,
			Total:      res.Total,
			TotalPages: totalPages,
		},
	})
}

// UnreadCount godoc
// @Summary      Total de no leídas
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.UnreadCountResponse
// @Router       /api/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	n, err := h.svc.CountUnread(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.UnreadCountResponse{Unread: n})
}

// MarkRead godoc
// @Summary      Marcar como leída
// @Description  Solo el destinatario. Si ya estaba leída devuelve la fila sin cambios.
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID de la notificación"
// @Success      200  {object}  entity.Notification
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	n, err := h.svc.MarkRead(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if n == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "notificación no encontrada"})
	}
	return c.JSON(n)
}

// MarkAllRead godoc
// @Summary      Marcar todas como leídas
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.MarkAllReadResponse
// @Router       /api/notifications/read-all [patch]
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	n, err := h.svc.MarkAllRead(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.MarkAllReadResponse{Updated: n})
}

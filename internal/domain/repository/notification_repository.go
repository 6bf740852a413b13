package repository

import (
	"context"
	"time"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// NotificationPage resultado paginado con contadores leídos en la misma pasada.
type NotificationPage struct {
	Items  []*entity.Notification
	Total  int
	Unread int
}

// NotificationRepository puerto de persistencia de notificaciones.
type NotificationRepository interface {
	// CreateBatch inserta todas las filas o ninguna.
	CreateBatch(ctx context.Context, items []*entity.Notification) error
	List(ctx context.Context, recipientID string, limit, offset int, unreadOnly bool) (*NotificationPage, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead devuelve nil si la notificación no existe o no pertenece a recipientID.
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*entity.Notification, error)
	// MarkAllRead solo afecta filas no leídas; devuelve la cantidad afectada.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

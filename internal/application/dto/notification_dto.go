package dto

import "github.com/jhoicas/contratos-api/internal/domain/entity"

// NotificationListResponse página de notificaciones más el total de no leídas.
type NotificationListResponse struct {
	Notifications []*entity.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
	Page          PageResponse           `json:"page"`
}

// UnreadCountResponse total de no leídas.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// MarkAllReadResponse cantidad de filas afectadas.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

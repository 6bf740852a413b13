package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/contratos-api/internal/domain"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Notice datos de un evento a notificar; se crea una fila por destinatario.
type Notice struct {
	RecipientIDs []string
	Kind         entity.NotificationKind
	Title        string
	Body         string
	ReferenceID  *string
	Metadata     map[string]any
}

// ListOptions paginación del listado (Page empieza en 1).
type ListOptions struct {
	Page       int
	PageSize   int
	UnreadOnly bool
}

// ListResult página de notificaciones, más recientes primero.
type ListResult struct {
	Items    []*entity.Notification
	Unread   int
	Total    int
	Page     int
	PageSize int
}

// Service único escritor de notificaciones y único emisor del evento notification:new.
type Service struct {
	repo    repository.NotificationRepository
	users   repository.UserRepository
	emitter Emitter
	log     zerolog.Logger
	now     func() time.Time
}

// NewService construye el servicio de notificaciones.
func NewService(repo repository.NotificationRepository, users repository.UserRepository, emitter Emitter, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		emitter: emitter,
		log:     log,
		now:     time.Now,
	}
}

// Notify persiste una notificación por destinatario en una sola escritura por lote y
// después empuja cada fila al grupo personal de su destinatario.
// Un fallo de persistencia aborta todo el lote; un fallo de entrega en vivo solo se registra.
func (s *Service) Notify(ctx context.Context, n Notice) ([]*entity.Notification, error) {
	if !n.Kind.Valid() {
		return nil, fmt.Errorf("%w: tipo %q", domain.ErrInvalidInput, string(n.Kind))
	}
	if len(n.RecipientIDs) == 0 || strings.TrimSpace(n.Title) == "" {
		return nil, domain.ErrInvalidInput
	}
	now := s.now()
	rows := make([]*entity.Notification, 0, len(n.RecipientIDs))
	for _, recipientID := range n.RecipientIDs {
		if recipientID == "" {
			return nil, fmt.Errorf("%w: destinatario vacío", domain.ErrInvalidInput)
		}
		rows = append(rows, &entity.Notification{
			// UUIDv7: ordenable por tiempo, desempata filas con el mismo created_at.
			ID:          uuid.Must(uuid.NewV7()).String(),
			RecipientID: recipientID,
			Kind:        n.Kind,
			Title:       n.Title,
			Body:        n.Body,
			ReferenceID: n.ReferenceID,
			Metadata:    n.Metadata,
			CreatedAt:   now,
		})
	}

	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("%w: crear notificaciones: %v", domain.ErrPersistence, err)
	}

	for _, row := range rows {
		if err := s.emitter.EmitToUser(row.RecipientID, entity.EventNotificationNew, row); err != nil {
			s.log.Warn().Err(err).
				Str("user_id", row.RecipientID).
				Str("notification_id", row.ID).
				Msg("entrega en vivo fallida; queda la notificación persistida")
		}
	}
	return rows, nil
}

// NotifyByCapability resuelve en el momento del envío los usuarios activos con la capacidad
// (o admin) y los notifica. No reutiliza la membresía de grupos del gateway.
// Sin destinatarios devuelve (nil, nil).
func (s *Service) NotifyByCapability(ctx context.Context, capability string, n Notice) ([]*entity.Notification, error) {
	users, err := s.users.ListActiveByCapability(ctx, capability)
	if err != nil {
		return nil, fmt.Errorf("%w: usuarios con capacidad %s: %v", domain.ErrPersistence, capability, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	n.RecipientIDs = make([]string, 0, len(users))
	for _, u := range users {
		n.RecipientIDs = append(n.RecipientIDs, u.ID)
	}
	return s.Notify(ctx, n)
}

// List devuelve una página de notificaciones del usuario y su total de no leídas.
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	page, err := s.repo.List(ctx, userID, opts.PageSize, (opts.Page-1)*opts.PageSize, opts.UnreadOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: listar notificaciones: %v", domain.ErrPersistence, err)
	}
	return &ListResult{
		Items:    page.Items,
		Unread:   page.Unread,
		Total:    page.Total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}, nil
}

// CountUnread total de no leídas del usuario.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: contar no leídas: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

// MarkRead marca como leída una notificación del usuario.
// Devuelve (nil, nil) si no existe o es de otro usuario. Si ya estaba leída devuelve
// la fila sin cambios (read_at original), para que el cliente pueda refrescar la UI.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) (*entity.Notification, error) {
	if _, err := uuid.Parse(notificationID); err != nil {
		return nil, nil
	}
	n, err := s.repo.MarkRead(ctx, notificationID, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: marcar leída: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

// MarkAllRead marca todas las no leídas; llamadas repetidas devuelven 0.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: marcar todas leídas: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

var _ repository.NotificationRepository = (*NotificationRepo)(nil)

const notificationColumns = `id, recipient_id, kind, title, body, reference_id, metadata, read, read_at, created_at`

// NotificationRepo persistencia de notificaciones sobre PostgreSQL.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository construye el adaptador de notificaciones.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// CreateBatch inserta el lote en una sola transacción (pgx.Batch): todas las filas o ninguna.
func (r *NotificationRepo) CreateBatch(ctx context.Context, items []*entity.Notification) error {
	if len(items) == 0 {
		return nil
	}
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, $8)`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, n := range items {
			batch.Queue(query, n.ID, n.RecipientID, string(n.Kind), n.Title, n.Body, n.ReferenceID, n.Metadata, n.CreatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range items {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		return br.Close()
	})
}

// List página del destinatario, más recientes primero (created_at, id DESC).
// Los contadores y la página se leen en una tx REPEATABLE READ para que sean consistentes.
func (r *NotificationRepo) List(ctx context.Context, recipientID string, limit, offset int, unreadOnly bool) (*repository.NotificationPage, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin list notifications: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	page := &repository.NotificationPage{Items: []*entity.Notification{}}
	err = tx.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE NOT $2::boolean OR NOT read),
		       count(*) FILTER (WHERE NOT read)
		FROM notifications WHERE recipient_id = $1`, recipientID, unreadOnly,
	).Scan(&page.Total, &page.Unread)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2::boolean OR NOT read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		page.Items = append(page.Items, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit list notifications: %w", err)
	}
	return page, nil
}

// CountUnread total de no leídas del destinatario.
func (r *NotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead marca leída solo si pertenece a recipientID. read_at conserva la primera lectura.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*entity.Notification, error) {
	query := `
		UPDATE notifications SET read = true, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.pool.QueryRow(ctx, query, id, recipientID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead solo toca filas no leídas; una segunda llamada devuelve 0.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = true, read_at = $2
		WHERE recipient_id = $1 AND NOT read`, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*entity.Notification, error) {
	var (
		n    entity.Notification
		kind string
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &kind, &n.Title, &n.Body, &n.ReferenceID, &n.Metadata,
		&n.Read, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Kind = entity.NotificationKind(kind)
	return &n, nil
}

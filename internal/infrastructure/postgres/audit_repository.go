package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

var _ repository.AuditRecorder = (*AuditRepo)(nil)

// AuditRepo escribe en audit_logs; dentro de una tx el registro cae junto con la mutación.
type AuditRepo struct {
	q Querier
}

// NewAuditRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAuditRepository(q Querier) *AuditRepo {
	return &AuditRepo{q: q}
}

// Record inserta el evento; before/after se guardan como jsonb.
func (r *AuditRepo) Record(ctx context.Context, ev *entity.AuditEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, description, before, after, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.ActorID, ev.Action, ev.Resource, ev.ResourceID, ev.Description,
		ev.Before, ev.After, ev.Level, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

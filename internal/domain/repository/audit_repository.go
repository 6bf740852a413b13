package repository

import (
	"context"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// AuditRecorder almacenamiento genérico de auditoría (solo escritura).
type AuditRecorder interface {
	Record(ctx context.Context, event *entity.AuditEvent) error
}

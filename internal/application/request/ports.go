package request

import (
	"context"

	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

// TxRunner ejecuta fn dentro de una transacción de BD, con repositorios atados a esa tx.
// Si fn devuelve error se hace Rollback: ninguna escritura de fn queda persistida.
type TxRunner interface {
	RunRequest(ctx context.Context, fn func(
		requests repository.UpdateRequestRepository,
		contracts repository.ContractRepository,
		audit repository.AuditRecorder,
	) error) error
}

// Notifier contrato mínimo del servicio de notificaciones; lo implementa *notification.Service.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notice) ([]*entity.Notification, error)
	NotifyByCapability(ctx context.Context, capability string, n notification.Notice) ([]*entity.Notification, error)
}

// Mailer canal de e-mail (best-effort). Nil = deshabilitado.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

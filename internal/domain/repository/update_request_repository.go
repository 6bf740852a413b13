package repository

import (
	"context"
	"time"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// UpdateRequestRepository puerto de persistencia de solicitudes de actualización.
type UpdateRequestRepository interface {
	Create(ctx context.Context, req *entity.UpdateRequest) error
	GetByID(ctx context.Context, id string) (*entity.UpdateRequest, error)
	List(ctx context.Context, filter entity.RequestFilter) ([]*entity.UpdateRequest, error)
	// MarkEvaluated aplica la transición solo si la fila sigue en pending
	// (UPDATE ... WHERE status = 'pending'). false = otro evaluador ganó la carrera.
	MarkEvaluated(ctx context.Context, ev entity.Evaluation) (bool, error)
	Stats(ctx context.Context, monthStart time.Time) (*entity.RequestStats, error)
}

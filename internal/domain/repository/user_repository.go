package repository

import (
	"context"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// UserRepository define el puerto de persistencia para User (DIP).
// Los usuarios se devuelven con perfil y capacidades ya resueltos.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	// ListActiveByCapability usuarios activos que son admin o tienen la capacidad.
	ListActiveByCapability(ctx context.Context, capability string) ([]*entity.User, error)
}

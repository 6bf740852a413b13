package repository

import (
	"context"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// ContractRepository lectura de contratos/proveedores y mutación de secuencias.
type ContractRepository interface {
	GetContract(ctx context.Context, id string) (*entity.Contract, error)
	GetSupplier(ctx context.Context, id string) (*entity.Supplier, error)
	GetSequence(ctx context.Context, id string) (*entity.Sequence, error)
	// GetSequenceForUpdate bloquea la fila (SELECT ... FOR UPDATE); usar dentro de una transacción.
	GetSequenceForUpdate(ctx context.Context, id string) (*entity.Sequence, error)
	UpdateSequenceTerms(ctx context.Context, id string, value decimal.Decimal, issueDay int) error
}

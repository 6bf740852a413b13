package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

var _ repository.ContractRepository = (*ContractRepo)(nil)

// ContractRepo lectura de contratos/proveedores y escritura de secuencias (usable con pool o tx).
type ContractRepo struct {
	q Querier
}

// NewContractRepository construye el adaptador. Pasar pool o tx (Querier).
func NewContractRepository(q Querier) *ContractRepo {
	return &ContractRepo{q: q}
}

// GetContract obtiene un contrato. (nil, nil) si no existe.
func (r *ContractRepo) GetContract(ctx context.Context, id string) (*entity.Contract, error) {
	var c entity.Contract
	err := r.q.QueryRow(ctx,
		`SELECT id, supplier_id, number FROM contracts WHERE id::text = $1`, id,
	).Scan(&c.ID, &c.SupplierID, &c.Number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return &c, nil
}

// GetSupplier obtiene un proveedor. (nil, nil) si no existe.
func (r *ContractRepo) GetSupplier(ctx context.Context, id string) (*entity.Supplier, error) {
	var s entity.Supplier
	err := r.q.QueryRow(ctx,
		`SELECT id, name FROM suppliers WHERE id::text = $1`, id,
	).Scan(&s.ID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get supplier: %w", err)
	}
	return &s, nil
}

// GetSequence obtiene una secuencia. (nil, nil) si no existe.
func (r *ContractRepo) GetSequence(ctx context.Context, id string) (*entity.Sequence, error) {
	return r.getSequence(ctx, `
		SELECT id, contract_id, number, issue_day, value, updated_at
		FROM sequences WHERE id::text = $1`, id)
}

// GetSequenceForUpdate obtiene la secuencia y bloquea la fila (SELECT FOR UPDATE).
func (r *ContractRepo) GetSequenceForUpdate(ctx context.Context, id string) (*entity.Sequence, error) {
	return r.getSequence(ctx, `
		SELECT id, contract_id, number, issue_day, value, updated_at
		FROM sequences WHERE id::text = $1
		FOR UPDATE`, id)
}

// UpdateSequenceTerms reescribe valor y día de emisión.
func (r *ContractRepo) UpdateSequenceTerms(ctx context.Context, id string, value decimal.Decimal, issueDay int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE sequences SET value = $2, issue_day = $3, updated_at = now()
		WHERE id = $1`, id, value, issueDay)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update sequence: %s no existe", id)
	}
	return nil
}

func (r *ContractRepo) getSequence(ctx context.Context, query, id string) (*entity.Sequence, error) {
	var s entity.Sequence
	err := r.q.QueryRow(ctx, query, id).Scan(&s.ID, &s.ContractID, &s.Number, &s.IssueDay, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return &s, nil
}

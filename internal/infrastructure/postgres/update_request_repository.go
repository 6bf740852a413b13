package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/contratos-api/internal/domain"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/domain/repository"
)

var _ repository.UpdateRequestRepository = (*UpdateRequestRepo)(nil)

const updateRequestColumns = `id, requester_id, sector_id, supplier_id, contract_id, sequence_id,
	justification, attachment_ref, proposed_value, proposed_issue_day, status,
	evaluator_id, evaluated_at, rejection_reason, created_at, updated_at`

// UpdateRequestRepo persistencia de solicitudes (usable con pool o tx).
type UpdateRequestRepo struct {
	q Querier
}

// NewUpdateRequestRepository construye el adaptador. Pasar pool o tx (Querier).
func NewUpdateRequestRepository(q Querier) *UpdateRequestRepo {
	return &UpdateRequestRepo{q: q}
}

// Create inserta la solicitud. Una FK inexistente se informa como ErrReferentialMismatch.
func (r *UpdateRequestRepo) Create(ctx context.Context, req *entity.UpdateRequest) error {
	query := `
		INSERT INTO update_requests (` + updateRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.q.Exec(ctx, query,
		req.ID, req.RequesterID, req.SectorID, req.SupplierID, req.ContractID, req.SequenceID,
		req.Justification, req.AttachmentRef, req.ProposedValue, req.ProposedIssueDay, string(req.Status),
		req.EvaluatorID, req.EvaluatedAt, req.RejectionReason, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrReferentialMismatch, err)
		}
		return fmt.Errorf("insert update request: %w", err)
	}
	return nil
}

// GetByID obtiene una solicitud por ID. (nil, nil) si no existe.
func (r *UpdateRequestRepo) GetByID(ctx context.Context, id string) (*entity.UpdateRequest, error) {
	query := `SELECT ` + updateRequestColumns + ` FROM update_requests WHERE id = $1`
	req, err := scanUpdateRequest(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get update request: %w", err)
	}
	return req, nil
}

// List filtra por solicitante, estado, proveedor y rango de creación; más recientes primero.
func (r *UpdateRequestRepo) List(ctx context.Context, f entity.RequestFilter) ([]*entity.UpdateRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RequesterID != "" {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.SupplierID != "" {
		add("supplier_id = $%d", f.SupplierID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	query := `SELECT ` + updateRequestColumns + ` FROM update_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list update requests: %w", err)
	}
	defer rows.Close()

	list := []*entity.UpdateRequest{}
	for rows.Next() {
		req, err := scanUpdateRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update request: %w", err)
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

// MarkEvaluated UPDATE condicional: solo transiciona si sigue en pending.
// Con dos evaluadores concurrentes el segundo UPDATE espera el lock de fila y,
// tras el commit del primero, ya no coincide (0 filas).
func (r *UpdateRequestRepo) MarkEvaluated(ctx context.Context, ev entity.Evaluation) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE update_requests
		SET status = $2, evaluator_id = $3, evaluated_at = $4, rejection_reason = $5, updated_at = $4
		WHERE id = $1 AND status = 'pending'`,
		ev.RequestID, string(ev.Status), ev.EvaluatorID, ev.EvaluatedAt, ev.RejectionReason,
	)
	if err != nil {
		return false, fmt.Errorf("mark update request evaluated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Stats contadores globales y del mes que empieza en monthStart.
func (r *UpdateRequestRepo) Stats(ctx context.Context, monthStart time.Time) (*entity.RequestStats, error) {
	var s entity.RequestStats
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'approved' AND evaluated_at >= $1),
		       count(*) FILTER (WHERE status = 'rejected' AND evaluated_at >= $1),
		       count(*) FILTER (WHERE created_at >= $1)
		FROM update_requests`, monthStart,
	).Scan(&s.Pending, &s.ApprovedThisMonth, &s.RejectedThisMonth, &s.CreatedThisMonth)
	if err != nil {
		return nil, fmt.Errorf("update request stats: %w", err)
	}
	return &s, nil
}

func scanUpdateRequest(row pgx.Row) (*entity.UpdateRequest, error) {
	var (
		req    entity.UpdateRequest
		status string
	)
	err := row.Scan(
		&req.ID, &req.RequesterID, &req.SectorID, &req.SupplierID, &req.ContractID, &req.SequenceID,
		&req.Justification, &req.AttachmentRef, &req.ProposedValue, &req.ProposedIssueDay, &status,
		&req.EvaluatorID, &req.EvaluatedAt, &req.RejectionReason, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = entity.RequestStatus(status)
	return &req, nil
}

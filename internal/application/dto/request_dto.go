package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// CreateUpdateRequest entrada para crear una solicitud de actualización.
type CreateUpdateRequest struct {
	SupplierID       string           `json:"supplier_id" validate:"required,uuid"`
	ContractID       string           `json:"contract_id" validate:"required,uuid"`
	SequenceID       string           `json:"sequence_id" validate:"required,uuid"`
	Justification    string           `json:"justification" validate:"required"`
	AttachmentRef    *string          `json:"attachment_ref"`
	ProposedValue    *decimal.Decimal `json:"proposed_value"`
	ProposedIssueDay *int             `json:"proposed_issue_day" validate:"omitempty,min=1,max=31"`
}

// RejectRequest motivo obligatorio del rechazo.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// UpdateRequestResponse salida de una solicitud.
type UpdateRequestResponse struct {
	ID               string           `json:"id"`
	RequesterID      string           `json:"requester_id"`
	SectorID         *string          `json:"sector_id"`
	SupplierID       string           `json:"supplier_id"`
	ContractID       string           `json:"contract_id"`
	SequenceID       string           `json:"sequence_id"`
	Justification    string           `json:"justification"`
	AttachmentRef    *string          `json:"attachment_ref"`
	ProposedValue    *decimal.Decimal `json:"proposed_value"`
	ProposedIssueDay *int             `json:"proposed_issue_day"`
	Status           string           `json:"status"`
	EvaluatorID      *string          `json:"evaluator_id"`
	EvaluatedAt      *time.Time       `json:"evaluated_at"`
	RejectionReason  *string          `json:"rejection_reason"`
	CreatedAt        time.Time        `json:"created_at"`
}

// UpdateRequestListResponse lista de solicitudes.
type UpdateRequestListResponse struct {
	Items []UpdateRequestResponse `json:"items"`
}

// RequestStatsResponse contadores del mes para compras.
type RequestStatsResponse struct {
	Pending           int `json:"pending"`
	ApprovedThisMonth int `json:"approved_this_month"`
	RejectedThisMonth int `json:"rejected_this_month"`
	CreatedThisMonth  int `json:"created_this_month"`
}

// ToUpdateRequestResponse mapea la entidad a la salida HTTP.
func ToUpdateRequestResponse(r *entity.UpdateRequest) UpdateRequestResponse {
	return UpdateRequestResponse{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		SectorID:         r.SectorID,
		SupplierID:       r.SupplierID,
		ContractID:       r.ContractID,
		SequenceID:       r.SequenceID,
		Justification:    r.Justification,
		AttachmentRef:    r.AttachmentRef,
		ProposedValue:    r.ProposedValue,
		ProposedIssueDay: r.ProposedIssueDay,
		Status:           string(r.Status),
		EvaluatorID:      r.EvaluatorID,
		EvaluatedAt:      r.EvaluatedAt,
		RejectionReason:  r.RejectionReason,
		CreatedAt:        r.CreatedAt,
	}
}

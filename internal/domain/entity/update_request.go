package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus estado de una solicitud de actualización.
type RequestStatus string

// pending es el estado inicial; approved y rejected son terminales.
const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Valid informa si el estado existe.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// Terminal true para approved y rejected.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// UpdateRequest solicitud de cambio de valor y/o día de emisión de una secuencia de contrato.
type UpdateRequest struct {
	ID               string
	RequesterID      string
	SectorID         *string
	SupplierID       string
	ContractID       string
	SequenceID       string
	Justification    string
	AttachmentRef    *string
	ProposedValue    *decimal.Decimal
	ProposedIssueDay *int
	Status           RequestStatus
	EvaluatorID      *string
	EvaluatedAt      *time.Time
	RejectionReason  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChangesSequence true si la aprobación debe reescribir la secuencia referenciada.
func (r *UpdateRequest) ChangesSequence() bool {
	return r.ProposedValue != nil || r.ProposedIssueDay != nil
}

// Evaluation datos de la transición pending -> terminal, aplicados en un único UPDATE condicional.
type Evaluation struct {
	RequestID       string
	Status          RequestStatus
	EvaluatorID     string
	EvaluatedAt     time.Time
	RejectionReason *string
}

// RequestFilter filtros del listado de solicitudes.
type RequestFilter struct {
	RequesterID string
	Status      RequestStatus
	SupplierID  string
	From        *time.Time
	To          *time.Time
}

// RequestStats contadores para el panel de compras.
type RequestStats struct {
	Pending           int
	ApprovedThisMonth int
	RejectedThisMonth int
	CreatedThisMonth  int
}

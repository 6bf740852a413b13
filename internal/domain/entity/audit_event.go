package entity

import "time"

// Acciones auditadas del flujo de solicitudes.
const (
	AuditActionCreate  = "CREATE"
	AuditActionApprove = "APPROVE"
	AuditActionReject  = "REJECT"
)

// AuditEvent registro de auditoría; Before/After capturan los campos mutados.
type AuditEvent struct {
	ID          string
	ActorID     string
	Action      string
	Resource    string // "update_request", "sequence"
	ResourceID  string
	Description string
	Before      map[string]any
	After       map[string]any
	Level       string // INFO, WARN
	CreatedAt   time.Time
}

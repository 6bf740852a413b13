package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract contrato con un proveedor (CRUD fuera de este servicio; aquí solo lectura).
type Contract struct {
	ID         string
	SupplierID string
	Number     string // nr de contrato, ej. "CT-001"
}

// Supplier proveedor.
type Supplier struct {
	ID   string
	Name string
}

// Sequence ítem de medición de un contrato: valor y día de emisión de la factura.
type Sequence struct {
	ID         string
	ContractID string
	Number     int
	IssueDay   int
	Value      decimal.Decimal
	UpdatedAt  time.Time
}

// Terms campos de la secuencia que una aprobación puede reescribir.
func (s *Sequence) Terms() map[string]any {
	return map[string]any{
		"value":     s.Value,
		"issue_day": s.IssueDay,
	}
}

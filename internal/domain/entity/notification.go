package entity

import (
	"fmt"
	"time"
)

// NotificationKind tipo cerrado de notificación. Valores desconocidos se rechazan al parsear.
type NotificationKind string

const (
	KindRequestCreated  NotificationKind = "request_created"
	KindRequestApproved NotificationKind = "request_approved"
	KindRequestRejected NotificationKind = "request_rejected"
)

// EventNotificationNew nombre del evento en el canal en vivo.
const EventNotificationNew = "notification:new"

// ParseNotificationKind valida el tipo contra el conjunto cerrado.
func ParseNotificationKind(s string) (NotificationKind, error) {
	k := NotificationKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("tipo de notificación desconocido: %q", s)
	}
	return k, nil
}

// Valid informa si el tipo pertenece al conjunto cerrado.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindRequestCreated, KindRequestApproved, KindRequestRejected:
		return true
	}
	return false
}

// Route ruta del frontend a la que enlaza una notificación de este tipo.
func (k NotificationKind) Route() string {
	switch k {
	case KindRequestCreated:
		return "/compras"
	case KindRequestApproved, KindRequestRejected:
		return "/solicitacoes"
	}
	panic(fmt.Sprintf("entity: tipo de notificación sin ruta: %q", string(k)))
}

// UnmarshalText rechaza tipos desconocidos al decodificar JSON.
func (k *NotificationKind) UnmarshalText(b []byte) error {
	parsed, err := ParseNotificationKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Notification aviso persistido de un único destinatario.
// Inmutable salvo Read/ReadAt, que solo transicionan de no leída a leída.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	ReferenceID *string          `json:"reference_id"`
	Metadata    map[string]any   `json:"metadata"`
	Read        bool             `json:"read"`
	ReadAt      *time.Time       `json:"read_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

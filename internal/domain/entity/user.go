package entity

import (
	"slices"
	"time"
)

// Capacidades (permisos nombrados del perfil del usuario).
const (
	CapabilityCompras      = "compras"
	CapabilitySolicitacoes = "solicitacoes"
)

// User representa un usuario del sistema con su perfil de permisos resuelto.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string // bcrypt
	SectorID     *string
	IsAdmin      bool     // perfil administrador: pasa cualquier verificación de capacidad
	Capabilities []string // permisos del perfil
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCapability true si el usuario es admin o su perfil incluye la capacidad.
func (u *User) HasCapability(name string) bool {
	if u == nil {
		return false
	}
	return u.IsAdmin || slices.Contains(u.Capabilities, name)
}

// DisplayName nombre a mostrar en mensajes; cae al username si no hay nombre.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

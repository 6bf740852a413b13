package dto

import "time"

// LoginRequest entrada para login. Remember solo lo usa el cliente para elegir el almacén de credenciales.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

// RefreshRequest entrada para rotar el par de tokens.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserResponse salida de un usuario (sin password).
type UserResponse struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	IsAdmin      bool     `json:"is_admin"`
	Capabilities []string `json:"capabilities"`
	Active       bool     `json:"active"`
}

// TokenResponse par access + refresh emitido en login y refresh.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

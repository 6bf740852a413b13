package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrUserNotFound = errors.New("usuario no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Autenticación (handshake del canal en vivo y middleware REST).
	ErrAuthMissing      = errors.New("token no informado")
	ErrAuthInvalid      = errors.New("token inválido")
	ErrAuthExpired      = errors.New("token expirado")
	ErrAuthUserInactive = errors.New("usuario no encontrado o inactivo")

	// Flujo de aprobación.
	ErrAlreadyEvaluated    = errors.New("la solicitud ya fue evaluada")
	ErrReferentialMismatch = errors.New("contrato, secuencia y proveedor no se corresponden")

	// ErrPersistence aborta la operación completa; se reporta al llamador.
	ErrPersistence = errors.New("fallo de persistencia")
	// ErrTransport solo para entrega en vivo: se registra y nunca llega al llamador.
	ErrTransport = errors.New("fallo de transporte")
)

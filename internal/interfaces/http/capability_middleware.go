package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/contratos-api/internal/application/dto"
)

// capabilityChecker contrato mínimo para verificar capacidades.
// Lo implementa *auth.AuthUseCase; el uso de interfaz evita el import circular.
type capabilityChecker interface {
	HasCapability(ctx context.Context, userID, capability string) (bool, error)
}

// RequireCapability devuelve un middleware Fiber que verifica, en cada request, que el usuario
// del token tenga la capacidad (o sea admin). Debe usarse DESPUÉS de AuthMiddleware.
//
// Comportamiento:
//   - 403 Forbidden  → el perfil no incluye la capacidad o el usuario está inactivo.
//   - 503 Service Unavailable → fallo de infraestructura al consultar la DB.
//   - Sin user_id en el contexto responde 401.
func RequireCapability(capability string, checker capabilityChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "user_id no encontrado en el token",
			})
		}

		ok, err := checker.HasCapability(c.UserContext(), userID, capability)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "CAPABILITY_CHECK_FAILED",
				Message: "no se pudo verificar el permiso, intente más tarde",
			})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "se requiere el permiso '" + capability + "'",
			})
		}
		return c.Next()
	}
}

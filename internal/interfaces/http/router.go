package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/contratos-api/internal/application/auth"
	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/application/request"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC        *auth.AuthUseCase
	Notifications *notification.Service
	RequestUC     *request.UseCase
	JWTSecret     string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup := api.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	protected.Get("/auth/me", authHandler.Me)

	// Notificaciones del usuario
	notifHandler := NewNotificationHandler(deps.Notifications)
	notifs := protected.Group("/notifications")
	notifs.Get("/", notifHandler.List)
	notifs.Get("/unread-count", notifHandler.UnreadCount)
	notifs.Patch("/read-all", notifHandler.MarkAllRead)
	notifs.Patch("/:id/read", notifHandler.MarkRead)

	// Solicitudes: solicitacoes crea y consulta las propias; compras evalúa.
	reqHandler := NewRequestHandler(deps.RequestUC)
	solicitacoes := RequireCapability(entity.CapabilitySolicitacoes, deps.AuthUC)
	compras := RequireCapability(entity.CapabilityCompras, deps.AuthUC)
	reqs := protected.Group("/requests")
	reqs.Post("/", solicitacoes, reqHandler.Create)
	reqs.Get("/", solicitacoes, reqHandler.ListMine)
	reqs.Get("/review", compras, reqHandler.ListForReview)
	reqs.Get("/stats", compras, reqHandler.Stats)
	reqs.Get("/:id", reqHandler.GetByID)
	reqs.Patch("/:id/approve", compras, reqHandler.Approve)
	reqs.Patch("/:id/reject", compras, reqHandler.Reject)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/contratos-api/internal/application/auth"
	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/application/request"
	"github.com/jhoicas/contratos-api/internal/infrastructure/email"
	"github.com/jhoicas/contratos-api/internal/infrastructure/postgres"
	"github.com/jhoicas/contratos-api/internal/infrastructure/realtime"
	"github.com/jhoicas/contratos-api/internal/infrastructure/session"
	httpRouter "github.com/jhoicas/contratos-api/internal/interfaces/http"
	"github.com/jhoicas/contratos-api/internal/interfaces/ws"
	"github.com/jhoicas/contratos-api/pkg/config"
	"github.com/jhoicas/contratos-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	sessions, err := session.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	defer sessions.Close()

	userRepo := postgres.NewUserRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	requestRepo := postgres.NewUpdateRequestRepository(pool)
	contractRepo := postgres.NewContractRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// E-mail opcional: sin SMTP_HOST el caso de uso recibe un Mailer nil.
	var mailer request.Mailer
	if m := email.NewSMTPMailer(cfg.SMTP); m != nil {
		mailer = m
	} else {
		log.Warn().Msg("SMTP no configurado; e-mails deshabilitados")
	}

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, log.Component("realtime"))
	notificationSvc := notification.NewService(notificationRepo, userRepo, hub, log.Component("notification"))
	requestUC := request.NewUseCase(
		txRunner, requestRepo, contractRepo, userRepo,
		notificationSvc, mailer, cfg.App.BaseURL, log.Component("request"),
	)
	authUC := auth.NewAuthUseCase(userRepo, sessions, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL(),
		RefreshTTL: cfg.JWT.RefreshTTL(),
	})
	gateway := ws.NewGateway(authUC, hub, cfg.Realtime.HandshakeTimeout(), log.Component("gateway"))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Contratos API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "service": cfg.App.Name}
		if err := pool.Ping(c.UserContext()); err != nil {
			status["status"], status["db"] = "degraded", err.Error()
		}
		if err := sessions.Ping(c.UserContext()); err != nil {
			status["status"], status["redis"] = "degraded", err.Error()
		}
		return c.JSON(status)
	})

	// Canal en vivo: ws://<host>/ws, primer mensaje {"auth":{"token":"..."}}
	app.Use("/ws", ws.RequireUpgrade())
	app.Get("/ws", gateway.Handler())

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:        authUC,
		Notifications: notificationSvc,
		RequestUC:     requestUC,
		JWTSecret:     cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	requestUC.Wait()

	log.Info().Msg("aplicación detenida")
}

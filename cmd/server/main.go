package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/consumer"
	"github.com/marminbh/webhook-engine/internal/engine"
	"github.com/marminbh/webhook-engine/internal/handlers"
	"github.com/marminbh/webhook-engine/internal/logger"
	"github.com/marminbh/webhook-engine/internal/rabbitmq"
	"github.com/marminbh/webhook-engine/internal/routes"
	"github.com/marminbh/webhook-engine/internal/store"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.Connect(&cfg.Redis, logger.Named("store"))
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Error closing Redis client", zap.Error(err))
		}
	}()

	eng := engine.New(st, cfg.Engine, logger.Named("engine"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Stop()

	// Source-event consumer is optional; it only runs when the broker is
	// configured
	if cfg.RabbitMQ.Enabled() {
		conn := rabbitmq.NewConnection(&cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err := conn.Connect(); err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()

		cons := consumer.NewConsumer(conn, eng.Publisher, cfg.RabbitMQ.SourceQueue, logger.Named("consumer"))
		cons.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Webhook Engine",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Owner-ID",
	}))

	routes.SetupRoutes(app,
		handlers.NewWebhooksHandler(eng, logger.Named("handlers")),
		handlers.NewEventsHandler(eng, logger.Named("handlers")),
		handlers.NewHealthHandler(st, eng.Queue),
	)

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		if err := app.Shutdown(); err != nil {
			logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("HTTP server stopped")
}

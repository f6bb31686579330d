package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/wjixiang/aikb/bootstrap"
	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/middleware"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/routes"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	logging.Init()

	cfg := config.LoadConfig()
	application, err := bootstrap.NewApp(cfg)
	if err != nil {
		logging.Logger.Error("fail bootstrapping", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.StartWorkers(ctx); err != nil {
		logging.Logger.Error("fail starting workers", "error", err)
		os.Exit(1)
	}

	app := fiber.New()
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	routes.RegisterDocumentRoutes(app, application.Handlers.DocHandler)
	routes.SetupWebSocketRoutes(app, application.Handlers.WSHandler)

	port := cfg.HttpPort
	if port == "" {
		port = "3000"
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logging.Logger.Info("shutting down")
		cancel()
		if err := app.Shutdown(); err != nil {
			logging.Logger.Error("fail shutting down http server", "error", err)
		}
	}()

	logging.Logger.Info("server running", "port", port)
	if err := app.Listen(":" + port); err != nil {
		logging.Logger.Error("server stopped", "error", err)
	}
	if err := application.Shutdown(); err != nil {
		logging.Logger.Error("fail shutting down infrastructure", "error", err)
	}
}

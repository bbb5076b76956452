package main

import (
	"context"
	"entryready/internal/app"
	"entryready/internal/handlers"
	"entryready/internal/logger"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	log := logger.New("server").Function("run")

	application, err := app.New()
	if err != nil {
		return log.Err("failed to start application", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Er("failed to close application", err)
		}
	}()

	server := fiber.New(fiber.Config{
		AppName:               "entryready",
		DisableStartupMessage: application.Config.IsProduction(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          45 * time.Second,
	})
	server.Use(recover.New())

	if err := handlers.Router(server, application); err != nil {
		return log.Err("failed to register routes", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(fmt.Sprintf(":%d", application.Config.ServerPort))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-listenErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return log.Err("server stopped", err)
		}
		return nil
	case sig := <-quit:
		log.Info("Shutting down server", "signal", sig.String())
	}

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		return log.Err("server forced to shutdown", err)
	}
	return nil
}

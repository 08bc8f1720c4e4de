package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// The simulator stands in for a real charging network during local
// development: point the bridge's ocpi.base_url at it and run the full
// search/select/confirm/status/update flow against live fake sessions.
func main() {
	port := flag.Int("port", 9000, "HTTP port to listen on")
	token := flag.String("token", "dev-ocpi-token", "credentials token the bridge must present")
	powerKW := flag.Float64("power-kw", 30, "simulated charging power in kW")
	cdrDelay := flag.Duration("cdr-delay", 2*time.Second, "lag between session completion and CDR issuance")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	sim := NewSimulator(*token, *powerKW, *cdrDelay, logger)

	app := fiber.New(fiber.Config{
		AppName:               "ocpi-simulator",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	sim.Register(app)

	go func() {
		logger.Info("OCPI simulator listening", zap.Int("port", *port))
		if err := app.Listen(fmt.Sprintf(":%d", *port)); err != nil {
			logger.Fatal("simulator failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down simulator")
	_ = app.Shutdown()
}

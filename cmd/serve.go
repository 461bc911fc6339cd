package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"order-sync/core/loader"
	"order-sync/core/logger"
	"order-sync/core/middleware/auth"
	"order-sync/core/middleware/rayid"
	"order-sync/feature/workorder"
)

// serveCmd runs the HTTP upload/sync service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the order sync server",
	Long:  `Starts the HTTP server exposing workbook upload, preview and sync endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			log.Fatalf("Failed to initialize application: %v", err)
		}
		defer a.log.Sync()

		svc, err := a.service(a.cfg.Sync.Options())
		if err != nil {
			a.log.Fatal("Failed to wire sync service", zap.Error(err))
		}

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
			BodyLimit:             a.cfg.Server.BodyLimit(),
		})

		mgr := loader.NewManager()
		mgr.Register(workorder.NewFeature(svc, a.ingestor(), a.log))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(a.log, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Health check stays public
		app.Get("/healthz", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok"})
		})

		// 4. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey}))

		// 5. Load Features
		if err := mgr.LoadAll(app); err != nil {
			a.log.Fatal("Failed to load features", zap.Error(err))
		}

		// 6. Start Server
		go func() {
			a.log.Info("Starting server", zap.String("port", a.cfg.Server.Port))
			if err := app.Listen(":" + a.cfg.Server.Port); err != nil {
				a.log.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 7. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		a.log.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

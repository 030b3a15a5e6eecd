package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalog-sync/core/loader"
	"catalog-sync/core/logger"
	"catalog-sync/core/middleware/auth"
	"catalog-sync/core/middleware/rayid"
	"catalog-sync/feature/catalog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the catalog server",
	Long:  `Starts the HTTP server, the configuration watcher, and the background indexer.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApplication(false)
		if err != nil {
			log.Fatalf("Failed to initialize application: %v", err)
		}
		logg := a.logger

		if err := a.watcher.Start(logg); err != nil {
			logg.Warn("Configuration watcher unavailable", zap.Error(err))
		}

		// Best-effort inventory pre-population. Stops at shutdown.
		indexCtx, stopIndexer := context.WithCancel(context.Background())
		go a.manager.BackgroundIndex(indexCtx)

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
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

		// Metrics stay public; everything after this is key-protected.
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

		app.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey}))

		mgr := loader.NewManager()
		mgr.Register(catalog.NewFeature(a.catalog, logg))
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		go func() {
			logg.Info("Starting server", zap.String("port", a.cfg.Server.Port))
			if err := app.Listen(":" + a.cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		stopIndexer()
		_ = app.Shutdown()
		a.close()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bubbles-duel/config"
	"bubbles-duel/handlers"
	"bubbles-duel/services"
	"bubbles-duel/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := newDuelRepository(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize duel store:", err)
	}

	registry := services.NewDuelRegistry(repo)
	duelService := services.NewDuelService(registry)

	sched, err := duelService.StartSweepScheduler(cfg.SweepInterval, cfg.Retention)
	if err != nil {
		log.Fatal("failed to start duel sweep scheduler:", err)
	}

	app := newApp(cfg, duelService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Duel store: %s", cfg.StoreDriver)
	log.Printf("✅ Duel sweep every %s (retention %s)", cfg.SweepInterval, cfg.Retention)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func newApp(cfg config.Config, duelService *services.DuelService) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))

	handlers.SetupHealthRoute(app)
	handlers.SetupDuelRoutes(app, duelService, cfg.APIToken)
	handlers.SetupStaticRoutes(app, cfg.StaticDir)
	return app
}

func newDuelRepository(ctx context.Context, cfg config.Config) (services.DuelRepository, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		repo := services.NewGormDuelRepository(db)
		if err := repo.Migrate(); err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreR2:
		client, err := storage.NewR2Client(ctx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
		})
		if err != nil {
			return nil, err
		}
		return services.NewDocumentDuelRepository(storage.NewR2Store(client, cfg.R2Bucket, cfg.R2Prefix)), nil

	default:
		if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
			return nil, err
		}
		return services.NewDocumentDuelRepository(storage.NewFileStore(cfg.DataDir)), nil
	}
}

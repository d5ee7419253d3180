package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/liveboard-app/liveboard-api/internal/config"
	"github.com/liveboard-app/liveboard-api/internal/database"
	"github.com/liveboard-app/liveboard-api/internal/handler"
	"github.com/liveboard-app/liveboard-api/internal/middleware"
	"github.com/liveboard-app/liveboard-api/internal/models"
	"github.com/liveboard-app/liveboard-api/internal/repository"
	"github.com/liveboard-app/liveboard-api/internal/router"
	"github.com/liveboard-app/liveboard-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Message{}, &models.NicknameTag{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	tagRepo := repository.NewTagRepository(db)

	allocator := service.NewTagAllocator(tagRepo, logger)

	// Legacy data repair must finish before the first request can touch the
	// allocator or the notifier.
	migrator := service.NewLegacyMigrator(messageRepo, tagRepo, allocator, logger)
	if err := migrator.Run(context.Background()); err != nil {
		log.Fatalf("legacy migration failed: %v", err)
	}

	notifier := service.NewLiveNotifier()
	boardService := service.NewBoardService(messageRepo, allocator, notifier, cache, cfg.RecentCacheTTL, validate, logger)
	boardHandler := handler.NewBoardHandler(boardService, logger, cfg.StreamTimeout, cfg.RecentLimit)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		BoardHandler: boardHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("board service listening")

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

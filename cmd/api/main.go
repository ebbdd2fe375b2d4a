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
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/config"
	"github.com/sortie-social/sortie-api/internal/database"
	"github.com/sortie-social/sortie-api/internal/handler"
	"github.com/sortie-social/sortie-api/internal/middleware"
	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/internal/repository"
	"github.com/sortie-social/sortie-api/internal/router"
	"github.com/sortie-social/sortie-api/internal/service"
	cloud "github.com/sortie-social/sortie-api/pkg/cloudinary"
	"github.com/sortie-social/sortie-api/pkg/push"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.DeviceToken{},
		&models.DirectMessage{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupMessage{},
		&models.GroupMessageRead{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, caching and event publishing disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, event relay disabled")
	}

	var gateway push.Gateway
	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMGateway(context.Background(), cfg.FCMCredentialsFile, logger)
		if err != nil {
			log.Fatalf("failed to create push gateway: %v", err)
		}
		gateway = fcm
	} else {
		logger.Warn().Msg("fcm credentials not configured, push delivery disabled")
	}

	var uploader service.FileStorage
	if cfg.CloudinaryCloudName != "" {
		cloudService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = cloudService
	} else {
		logger.Warn().Msg("cloudinary not configured, avatar upload disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	deviceRepo := repository.NewDeviceTokenRepository(db)
	directRepo := repository.NewDirectMessageRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	groupMessageRepo := repository.NewGroupMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	socialRepo := repository.NewSocialRepository(db)

	deviceRegistry := service.NewDeviceRegistry(deviceRepo, redisClient, logger)
	dispatcher := service.NewDispatcher(deviceRegistry, groupRepo, socialRepo, notificationRepo, gateway, redisClient, cfg.EventChannelBase, natsConn, logger)
	conversationService := service.NewConversationService(directRepo, groupRepo, groupMessageRepo, socialRepo, redisClient, cfg.SummaryCacheTTL, logger)
	groupService := service.NewGroupService(groupRepo, socialRepo, uploader, dispatcher, logger)
	messagingService := service.NewMessagingService(conversationService, dispatcher, logger)
	notificationService := service.NewNotificationService(notificationRepo, logger)

	messagingHandler := handler.NewMessagingHandler(messagingService, validate, logger)
	groupHandler := handler.NewGroupHandler(groupService, validate, logger)
	deviceHandler := handler.NewDeviceHandler(deviceRegistry, validate, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, dispatcher, deviceRegistry, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		MessagingHandler:    messagingHandler,
		GroupHandler:        groupHandler,
		DeviceHandler:       deviceHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

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

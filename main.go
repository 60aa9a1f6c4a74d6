package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-backend/internal/config"
	"chat-backend/internal/db"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/observability"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/repositories"
	"chat-backend/internal/storage"
	"chat-backend/internal/telemetry"
)

const serviceName = "chat-backend"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	avatars, err := storage.NewS3Store(ctx, cfg.S3Endpoint, cfg.S3PublicBaseURL, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		log.Fatalf("failed to init avatar store: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	tokenRepo := repositories.NewTokenRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	groupMessageRepo := repositories.NewGroupMessageRepo(database)

	authHandler := handlers.NewAuthHandler(userRepo, tokenRepo, avatars, audit)
	userHandler := handlers.NewUserHandler(userRepo, avatars, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, groupMessageRepo, userRepo, avatars, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	router.POST("/api/register", authHandler.Register)
	router.POST("/api/login", authHandler.Login)

	authMiddleware := middleware.AuthMiddleware(tokenRepo)
	api := router.Group("/api", authMiddleware)

	api.GET("/users", userHandler.ListUsers)
	api.PUT("/profile/avatar", userHandler.UpdateAvatar)

	api.POST("/messages", messageHandler.SendMessage)
	api.GET("/messages/conversation", messageHandler.GetConversation)
	api.GET("/messages/unread_counts", messageHandler.UnreadCounts)

	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups", groupHandler.ListGroups)
	api.POST("/groups/:group_id/add_member", groupHandler.AddMember)
	api.POST("/groups/:group_id/remove_member", groupHandler.RemoveMember)
	api.POST("/groups/:group_id/leave", groupHandler.Leave)
	api.POST("/groups/:group_id/messages", groupHandler.PostGroupMessage)
	api.GET("/groups/:group_id/messages", groupHandler.GetGroupMessages)
	api.GET("/group-messages/unread_counts", groupHandler.GroupUnreadCounts)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

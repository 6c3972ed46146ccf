package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/attachment"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/handler"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/kafka"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/service"
	"github.com/weiawesome/wes-chat-socket/pkg/database"
	pkglog "github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/pubsub"
	"github.com/weiawesome/wes-chat-socket/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, domain.Models()...); err != nil {
			logger.Fatal().Err(err).Msg("failed to auto-migrate")
		}
		logger.Info().Msg("database migration completed")
	}
	store := repository.NewGormStore(db)

	// File storage for attachment and avatar URLs
	fileStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file storage")
	}
	resolver := attachment.NewResolver(fileStore, cfg.Chat.URLExpiry)

	// Cross-instance backplane
	var backplane broadcast.Backplane
	if cfg.Redis.Enabled {
		bus, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		backplane = broadcast.NewPubSubBackplane(bus, cfg.Redis.Channel, cfg.Log.InstanceID)
		logger.Info().Str("address", cfg.Redis.Address).Str("channel", cfg.Redis.Channel).Msg("redis backplane connected")
	}

	// Persisted-message events
	var producer kafka.MessageProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		producer = p
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	hubDone := make(chan struct{})
	go func() {
		wsHub.Run(ctx)
		close(hubDone)
	}()

	router := broadcast.NewRouter(wsHub, backplane)

	// Initialize Chat Service
	chatSvc := service.NewChatService(wsHub, router, store, resolver, producer, service.Options{
		ReadOnJoin: cfg.Chat.ReadOnJoin,
	})
	if err := chatSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat service")
	}

	// Setup HTTP server
	origins := handler.NewOriginPolicy(cfg.WebSocket.AllowedOrigins)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket, origins)
	engine := handler.NewRouter(wsHandler, cfg.WebSocket.Path, origins, logger, func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("path", cfg.WebSocket.Path).
			Str("driver", cfg.Database.Driver).
			Bool("backplane", backplane != nil).
			Msg("chat-socket listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-socket")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Closing the hub disconnects every socket.
	cancel()
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
	}

	if err := chatSvc.Stop(); err != nil {
		logger.Warn().Err(err).Msg("failed to stop chat service")
	}

	logger.Info().Msg("chat-socket stopped")
}

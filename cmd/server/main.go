package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clanchat/internal/auth"
	"clanchat/internal/config"
	"clanchat/internal/database"
	"clanchat/internal/handlers"
	"clanchat/internal/metrics"
	"clanchat/internal/services"
	"clanchat/internal/websocket"
	"clanchat/pkg/logger"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Presence and fanout go through Redis when configured so several
	// instances can share rooms.
	opts := websocket.Options{
		Metrics:     metrics.New(),
		TypingRate:  rate.Limit(cfg.Chat.TypingRate),
		TypingBurst: cfg.Chat.TypingBurst,
	}
	if cfg.Redis.URL != "" {
		rdb, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		opts.Presence = websocket.NewRedisPresence(rdb)
		opts.Fanout = websocket.NewRedisFanout(rdb)
		logger.Info("Using redis for presence and fanout")
	}

	hubManager := websocket.NewManager(opts)

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	clanService := services.NewClanService(db, hubManager)
	chatService := services.NewChatService(db, hubManager, cfg.Chat.HistoryLimit)
	notificationService := services.NewNotificationService(db)

	hubManager.Handle(handlers.NewSocketEvents(chatService, clanService, notificationService, hubManager))
	if err := hubManager.Start(ctx); err != nil {
		logger.Fatal("Failed to start hub manager: %v", err)
	}

	server := &http.Server{
		Addr: cfg.Server.Port,
		Handler: handlers.NewRouter(handlers.Deps{
			Auth:          authService,
			Clans:         clanService,
			Chat:          chatService,
			Notifications: notificationService,
			HubManager:    hubManager,
			Metrics:       opts.Metrics,
			Media:         cfg.Media,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hubManager.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
		os.Exit(1)
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	for _, e := range handlers.Endpoints {
		logger.Info("   %s", e)
	}
}

package main

import (
	"context"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/playroomhq/playroom/internal/api/handlers"
	"github.com/playroomhq/playroom/internal/api/middleware"
	"github.com/playroomhq/playroom/internal/bots"
	"github.com/playroomhq/playroom/internal/config"
	"github.com/playroomhq/playroom/internal/crypto"
	"github.com/playroomhq/playroom/internal/database"
	"github.com/playroomhq/playroom/internal/llm"
	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/internal/room"
	"github.com/playroomhq/playroom/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	// Set Gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Open database
	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize JWT manager
	logger.Infof("Initializing JWT manager...")
	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	// Bot roster store with change feed
	feed := bots.NewFeed()
	store := bots.NewStore(db.DB, feed)

	// Delegate responder for bot replies
	responder := llm.New(llm.Config{
		APIKey: cfg.OpenAIKey,
		Model:  cfg.OpenAIModel,
	})

	// Room registry: one room per channel, created on first join
	rooms := websocket.NewRooms(func(channelID string, emitter room.Emitter) (*room.Room, error) {
		rm := room.New(room.Config{
			ID:            channelID,
			DefaultPrompt: cfg.RoomDefaultPrompt,
			Emitter:       emitter,
			Responder:     responder,
			Records:       store,
			Feed:          feed,
		})
		if err := rm.Start(context.Background()); err != nil {
			return nil, err
		}
		return rm, nil
	})

	// Initialize Socket.IO server
	logger.Infof("Initializing Socket.IO server...")
	socketIOServer := websocket.NewSocketIOServer(jwtManager, rooms)
	defer socketIOServer.Close()

	// Plain WebSocket fallback transport
	simpleServer := websocket.NewSimpleServer(jwtManager, rooms)

	// Create Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Logging middleware
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(200, "It's time to kick ass and chew bubblegum!")
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(jwtManager)
	botHandler := handlers.NewBotHandler(store)

	// Public routes (no auth required)
	v1 := router.Group("/v1")
	{
		v1.POST("/auth/guest", authHandler.PostGuest)
	}

	// Protected routes (auth required) - the bot editor backend
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		protected.POST("/save_bot", botHandler.SaveBot)
		protected.GET("/get_bots/:playerId", botHandler.GetBots)
		protected.POST("/update_bot_prompt", botHandler.UpdateBotPrompt)
		protected.POST("/delete_bot", botHandler.DeleteBot)
	}

	// Mount Socket.IO endpoint at /v1/room (handshake carries the auth)
	router.Any("/v1/room", socketIOServer.HandleSocketIO())
	router.Any("/v1/room/*any", socketIOServer.HandleSocketIO())

	// Plain WebSocket fallback
	router.GET("/v1/ws", simpleServer.HandleWebSocket)

	// Start HTTP server
	logger.Infof("Playroom Server starting on http://localhost%s", cfg.Addr)
	logger.Infof("Database: %s", cfg.DatabasePath)
	logger.Infof("JWT signing enabled")

	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}

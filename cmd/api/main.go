package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pointsarcade/internal/config"
	"pointsarcade/internal/handlers"
	"pointsarcade/internal/logger"
	"pointsarcade/internal/middleware"
	"pointsarcade/internal/services"
)

func main() {
	ctx := context.Background()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("failed to load config")
	}

	if cfg.LogFile != "" {
		if err := logger.InitWithFile(cfg.LogFile, cfg.LogLevel, cfg.LogFormat); err != nil {
			logger.Fatal(ctx).Err(err).Msg("failed to open log file")
		}
	} else {
		logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	if envErr != nil {
		logger.Info(ctx).Msg("no .env file found, using environment variables")
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("failed to connect to redis")
	}
	defer redisService.Close()

	var history services.HistoryStore = redisService
	if cfg.HistoryBackend == "postgres" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: logger.NewGormLogger("history_db", cfg.LogLevel, 0),
		})
		if err != nil {
			logger.Fatal(ctx).Err(err).Msg("failed to connect to postgres")
		}
		sqlHistory := services.NewSQLHistoryStore(db)
		if err := sqlHistory.Migrate(); err != nil {
			logger.Fatal(ctx).Err(err).Msg("failed to migrate history tables")
		}
		history = sqlHistory
	}

	var delegated services.BalanceStore
	if cfg.KickletEnabled() {
		kicklet := services.NewKickletClient(services.KickletConfig{
			BaseURL:        cfg.KickletURL,
			Token:          cfg.KickletToken,
			MaxRetries:     cfg.KickletMaxRetries,
			BaseRetryDelay: cfg.KickletRetryBase,
		})
		delegated = services.NewDelegatedProviderStore(kicklet, cfg.KickChannelID, redisService)
	} else {
		logger.Warn(ctx).Msg("kicklet not configured, users with a linked kick account cannot play")
	}

	ledger := services.NewLedger(redisService, services.NewInternalCounterStore(redisService), delegated)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := handlers.NewWebSocketHub()
	go hub.Run(hubCtx)

	gameEngine := services.NewGameEngine(ledger, history, redisService,
		services.WithBroadcaster(hub),
		services.WithHouseEdge(cfg.HouseEdge),
		services.WithMaxBet(cfg.MaxBet),
		services.WithMinesTTL(cfg.MinesSessionTTL),
	)

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	accounts := services.NewAccountService(redisService, ledger, jwtService, cfg.StartingPoints, cfg.SessionTTL)

	userHandler := handlers.NewUserHandler(accounts, ledger)
	gameHandler := handlers.NewGameHandler(gameEngine)
	wsHandler := handlers.NewWebSocketHandler(hub, ledger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		if err := redisService.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/session", userHandler.CreateSession)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		link := protected.Group("/link")
		{
			link.POST("/kick", userHandler.LinkKick)
			link.POST("/gamdom", userHandler.LinkGamdom)
			link.POST("/discord", userHandler.LinkDiscord)
		}

		games := protected.Group("/games")
		{
			games.GET("/history", gameHandler.GetGameHistory)

			play := games.Group("")
			play.Use(middleware.RateLimitMiddleware(redisService, "play", services.DefaultRateLimitPlays, time.Minute))
			{
				play.POST("/dice/play", gameHandler.PlayDice)
				play.POST("/limbo/play", gameHandler.PlayLimbo)
				play.POST("/blackjack/play", gameHandler.PlayBlackjack)
				play.POST("/keno/play", gameHandler.PlayKeno)
				play.POST("/mines/start", gameHandler.StartMines)
				play.POST("/mines/cashout", gameHandler.CashoutMines)
			}

			mines := games.Group("/mines")
			{
				mines.GET("/active", gameHandler.GetActiveMines)
				mines.POST("/reveal",
					middleware.RateLimitMiddleware(redisService, "reveal", services.DefaultRateLimitReveals, time.Minute),
					gameHandler.RevealMine)
			}
		}
	}

	admin := router.Group("/api/users")
	admin.Use(middleware.AdminKeyMiddleware(cfg.AdminAPIKey))
	{
		admin.GET("/:id/points", userHandler.GetPoints)
		admin.POST("/:id/points", userHandler.UpdatePoints)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx).Str("port", cfg.Port).Str("history", cfg.HistoryBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx).Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx).Msg("shutting down")
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx).Err(err).Msg("server shutdown failed")
	}
}
